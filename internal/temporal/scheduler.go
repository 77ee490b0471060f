package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"locuscore/internal/clock"
	"locuscore/internal/locus"
)

// Event kinds for the reminder lifecycle. Sent and cancelled are terminal;
// they extend the scheduled reminder's context rather than mutating it.
const (
	KindReminderScheduled = "reminder.scheduled"
	KindReminderSent      = "reminder.sent"
	KindReminderCancelled = "reminder.cancelled"
)

// Reminder statuses.
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusCancelled = "cancelled"
)

const defaultDueLimit = 50

// ReminderRequest describes a reminder to schedule. EventTime is when the
// target entity happens; the reminder fires MinutesBefore minutes earlier.
type ReminderRequest struct {
	TargetEntityType string
	TargetEntityID   string
	EventTime        time.Time
	MinutesBefore    int
	UserID           string
	Title            string
	Message          string
}

// Reminder is the folded state of a reminder context.
type Reminder struct {
	ContextID        string
	EventID          string
	TargetEntityType string
	TargetEntityID   string
	OriginalEvent    time.Time
	TriggerAt        time.Time
	MinutesBefore    int
	UserID           string
	Title            string
	Message          string
	Status           string
}

// Scheduler manages reminders and temporal queries over the store.
type Scheduler struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
}

// NewScheduler creates a scheduler over the given store client.
func NewScheduler(client locus.Client, clk clock.Clock, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{client: client, clk: clk, log: log}
}

// EnrichPayload attaches a temporal envelope using the scheduler's clock.
func (s *Scheduler) EnrichPayload(payload map[string]any, temporalType string, ts time.Time) map[string]any {
	if ts.IsZero() {
		ts = s.clk.Now()
	}
	return Enrich(payload, temporalType, ts, s.clk.Now())
}

// ScheduleReminder appends a reminder under a fresh context, linked to its
// target entity, tagged "due" at its computed trigger time.
func (s *Scheduler) ScheduleReminder(ctx context.Context, req ReminderRequest) (Reminder, error) {
	triggerAt := req.EventTime.UTC().Add(-time.Duration(req.MinutesBefore) * time.Minute)
	contextID := "reminder_scheduled:" + locus.NewID()

	payload := map[string]any{
		"target_entity_type":      req.TargetEntityType,
		"target_entity_id":        req.TargetEntityID,
		"original_event_time":     req.EventTime.UTC().Format(time.RFC3339),
		"trigger_at":              triggerAt.Format(time.RFC3339),
		"reminder_minutes_before": req.MinutesBefore,
		"user_id":                 req.UserID,
		"title":                   req.Title,
		"message":                 req.Message,
		"status":                  StatusScheduled,
	}
	payload = Enrich(payload, TypeDue, triggerAt, s.clk.Now())

	res, err := s.client.Append(ctx, locus.AppendRequest{
		Kind:      KindReminderScheduled,
		ContextID: contextID,
		Payload:   payload,
		RelatedTo: []string{req.TargetEntityType + ":" + req.TargetEntityID},
		Source:    "temporal",
	})
	if err != nil {
		return Reminder{}, err
	}
	if !res.Stored() {
		return Reminder{}, fmt.Errorf("schedule reminder rejected: %s", res.ErrorMessage)
	}

	s.log.Debug("reminder scheduled",
		"context_id", contextID,
		"target", req.TargetEntityType+":"+req.TargetEntityID,
		"trigger_at", triggerAt)

	return Reminder{
		ContextID:        contextID,
		EventID:          res.EventID,
		TargetEntityType: req.TargetEntityType,
		TargetEntityID:   req.TargetEntityID,
		OriginalEvent:    req.EventTime.UTC(),
		TriggerAt:        triggerAt,
		MinutesBefore:    req.MinutesBefore,
		UserID:           req.UserID,
		Title:            req.Title,
		Message:          req.Message,
		Status:           StatusScheduled,
	}, nil
}

// DueReminders returns reminders whose trigger time has passed and whose
// context has no terminal status event. The semantic "due" search only
// generates candidates; the trigger cutoff is enforced locally.
func (s *Scheduler) DueReminders(ctx context.Context, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	now := s.clk.Now()

	candidates, err := s.client.Search(ctx, locus.SearchRequest{
		Query:        "due reminders",
		ContextTypes: map[string][]string{KindReminderScheduled: {TypeDue}},
		Limit:        limit * 2,
	})
	if err != nil {
		return nil, err
	}

	due := make([]Reminder, 0, len(candidates))
	contextIDs := make([]string, 0, len(candidates))
	for _, ev := range candidates {
		if ev.Kind != KindReminderScheduled {
			continue
		}
		r := reminderFromEvent(ev)
		if r.TriggerAt.IsZero() || r.TriggerAt.After(now) {
			continue
		}
		due = append(due, r)
		contextIDs = append(contextIDs, r.ContextID)
	}
	if len(due) == 0 {
		return nil, nil
	}

	closed, err := s.closedContexts(ctx, contextIDs)
	if err != nil {
		return nil, err
	}

	open := due[:0]
	for _, r := range due {
		if closed[r.ContextID] != "" {
			continue
		}
		open = append(open, r)
		if len(open) == limit {
			break
		}
	}
	return open, nil
}

// MarkReminderSent records a terminal sent transition on the reminder
// context.
func (s *Scheduler) MarkReminderSent(ctx context.Context, contextID string) error {
	return s.transition(ctx, contextID, KindReminderSent, StatusSent)
}

// CancelReminder records a terminal cancelled transition on the reminder
// context.
func (s *Scheduler) CancelReminder(ctx context.Context, contextID string) error {
	return s.transition(ctx, contextID, KindReminderCancelled, StatusCancelled)
}

// GetReminder folds a reminder context into its current state.
func (s *Scheduler) GetReminder(ctx context.Context, contextID string) (Reminder, bool, error) {
	events, err := s.client.Search(ctx, locus.SearchRequest{
		Query:      contextID,
		ContextIDs: []string{contextID},
		Limit:      16,
	})
	if err != nil {
		return Reminder{}, false, err
	}

	var r Reminder
	found := false
	status := ""
	// Newest first: the first terminal event fixes the status, the
	// scheduled event carries the body.
	for _, ev := range events {
		switch ev.Kind {
		case KindReminderSent:
			if status == "" {
				status = StatusSent
			}
		case KindReminderCancelled:
			if status == "" {
				status = StatusCancelled
			}
		case KindReminderScheduled:
			if !found {
				r = reminderFromEvent(ev)
				found = true
			}
		}
	}
	if !found {
		return Reminder{}, false, nil
	}
	if status != "" {
		r.Status = status
	}
	return r, true, nil
}

// TemporalContexts is the shared candidates-then-filter query behind the
// upcoming/past/today/due views. Candidates come from a free-text search
// scoped to the user; the temporal predicate and the optional window are
// enforced locally against each event's envelope timestamp.
func (s *Scheduler) TemporalContexts(ctx context.Context, userID, temporalType string, window *Range, limit int) ([]locus.Event, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	now := s.clk.Now()

	events, err := s.client.Search(ctx, locus.SearchRequest{
		Query: temporalType + " events user " + userID,
		Limit: limit * 2,
	})
	if err != nil {
		return nil, err
	}

	out := make([]locus.Event, 0, limit)
	for _, ev := range events {
		if userID != "" && ev.PayloadString("user_id") != userID {
			continue
		}
		ts := EnvelopeTime(ev.Payload)
		if ts.IsZero() {
			ts = ev.Timestamp
		}
		if !matchesTemporalType(temporalType, ts, now) {
			continue
		}
		if window != nil && !window.Contains(ts) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func matchesTemporalType(temporalType string, ts, now time.Time) bool {
	switch temporalType {
	case TypeUpcoming:
		return IsUpcoming(ts, now)
	case TypePast:
		return IsPast(ts, now)
	case TypeToday:
		return IsToday(ts, now)
	case TypeDue:
		return !ts.After(now)
	default:
		return true
	}
}

func (s *Scheduler) transition(ctx context.Context, contextID, kind, status string) error {
	res, err := s.client.Append(ctx, locus.AppendRequest{
		Kind:      kind,
		ContextID: contextID,
		Payload: map[string]any{
			"status":        status,
			"transition_at": s.clk.Now().Format(time.RFC3339),
		},
		Extends: []string{contextID},
		Source:  "temporal",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("reminder %s rejected: %s", status, res.ErrorMessage)
	}
	return nil
}

// closedContexts finds terminal status events among the given reminder
// contexts and maps each closed context to its terminal status.
func (s *Scheduler) closedContexts(ctx context.Context, contextIDs []string) (map[string]string, error) {
	events, err := s.client.Search(ctx, locus.SearchRequest{
		Query:      "reminder status",
		ContextIDs: contextIDs,
		Limit:      len(contextIDs) * 4,
	})
	if err != nil {
		return nil, err
	}
	closed := make(map[string]string)
	for _, ev := range events {
		switch ev.Kind {
		case KindReminderSent:
			closed[ev.ContextID] = StatusSent
		case KindReminderCancelled:
			closed[ev.ContextID] = StatusCancelled
		}
	}
	return closed, nil
}

func reminderFromEvent(ev locus.Event) Reminder {
	minutes := 0
	switch v := ev.Payload["reminder_minutes_before"].(type) {
	case int:
		minutes = v
	case float64:
		minutes = int(v)
	}
	return Reminder{
		ContextID:        ev.ContextID,
		EventID:          ev.ID,
		TargetEntityType: ev.PayloadString("target_entity_type"),
		TargetEntityID:   ev.PayloadString("target_entity_id"),
		OriginalEvent:    ev.PayloadTime("original_event_time"),
		TriggerAt:        ev.PayloadTime("trigger_at"),
		MinutesBefore:    minutes,
		UserID:           ev.PayloadString("user_id"),
		Title:            ev.PayloadString("title"),
		Message:          ev.PayloadString("message"),
		Status:           ev.PayloadString("status"),
	}
}
