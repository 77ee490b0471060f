package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"locuscore/internal/clock"
	"locuscore/internal/dup"
	"locuscore/internal/locus"
	"locuscore/internal/schema"
	"locuscore/internal/temporal"
)

// Summary is what every bulk endpoint returns: per-item outcomes plus the
// rollup counts recorded on the batch context.
type Summary struct {
	Batch           Batch
	TotalItems      int
	SuccessfulItems int
	FailedItems     int
	EntityIDs       []string
	Items           []ItemResult
}

// Deps bundles the shared collaborators of the domain creators. One set is
// built at the composition root and passed to each creator.
type Deps struct {
	Client  locus.Client
	Clock   clock.Clock
	Log     *slog.Logger
	Tracker *Tracker
	Schemas *schema.Registry
}

func (d Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// AppointmentCreator bulk-creates appointments with duplicate checks and
// reminder scheduling per item.
type AppointmentCreator struct {
	deps      Deps
	detector  *dup.AppointmentDetector
	scheduler *temporal.Scheduler
}

// NewAppointmentCreator wires an appointment creator.
func NewAppointmentCreator(deps Deps, detector *dup.AppointmentDetector, scheduler *temporal.Scheduler) *AppointmentCreator {
	return &AppointmentCreator{deps: deps, detector: detector, scheduler: scheduler}
}

// CreateAppointments processes each input through the single-create path:
// schema check, duplicate check, entity append, reminder scheduling. A
// failed item is recorded and skipped; the batch always completes with a
// summary.
func (c *AppointmentCreator) CreateAppointments(ctx context.Context, userID string, items []map[string]any) (Summary, error) {
	b, err := c.deps.Tracker.Create(ctx, userID, "appointment", "bulk_create",
		fmt.Sprintf("bulk create of %d appointments", len(items)))
	if err != nil {
		return Summary{}, err
	}

	return runBatch(ctx, c.deps, b, items, func(ctx context.Context, entityID string, item map[string]any) error {
		payload := withUserID(item, userID)
		if err := c.deps.Schemas.Validate("appointment", payload); err != nil {
			return err
		}

		scheduledAt, err := time.Parse(time.RFC3339, stringField(payload, "scheduled_at"))
		if err != nil {
			return fmt.Errorf("scheduled_at: %w", err)
		}

		existing, err := c.detector.DetectDuplicate(ctx, dup.AppointmentQuery{
			Title:       stringField(payload, "title"),
			ScheduledAt: scheduledAt,
			DoctorName:  stringField(payload, "doctor_name"),
			Location:    stringField(payload, "location"),
			UserID:      userID,
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("duplicate of existing appointment %s", existing.ContextID)
		}

		temporalType := temporal.TypePast
		if scheduledAt.After(c.deps.Clock.Now()) {
			temporalType = temporal.TypeUpcoming
		}
		payload = temporal.Enrich(payload, temporalType, scheduledAt, c.deps.Clock.Now())

		if err := appendEntity(ctx, c.deps.Client, "appointment", entityID, payload); err != nil {
			return err
		}

		if minutes := intField(payload, "reminder_minutes_before"); minutes > 0 {
			_, err := c.scheduler.ScheduleReminder(ctx, temporal.ReminderRequest{
				TargetEntityType: "appointment",
				TargetEntityID:   entityID,
				EventTime:        scheduledAt,
				MinutesBefore:    minutes,
				UserID:           userID,
				Title:            stringField(payload, "title"),
			})
			if err != nil {
				return fmt.Errorf("scheduling reminder: %w", err)
			}
		}
		return nil
	})
}

// GetBatchAppointments resolves a completed batch back to its stored
// appointment events, in the order they were created.
func (c *AppointmentCreator) GetBatchAppointments(ctx context.Context, batchContextID string) ([]locus.Event, error) {
	st, ok, err := c.deps.Tracker.GetBatchStatus(ctx, batchContextID)
	if err != nil {
		return nil, err
	}
	if !ok || len(st.EntityIDs) == 0 {
		return nil, nil
	}

	contextIDs := make([]string, len(st.EntityIDs))
	for i, id := range st.EntityIDs {
		contextIDs[i] = "appointment:" + id
	}
	events, err := c.deps.Client.Search(ctx, locus.SearchRequest{
		Query:      "batch appointments",
		ContextIDs: contextIDs,
		Limit:      len(contextIDs) * 2,
	})
	if err != nil {
		return nil, err
	}

	// Newest first per context; keep the first event seen for each.
	byContext := make(map[string]locus.Event, len(events))
	for _, ev := range events {
		if ev.Kind != "appointment.create" {
			continue
		}
		if _, seen := byContext[ev.ContextID]; !seen {
			byContext[ev.ContextID] = ev
		}
	}

	out := make([]locus.Event, 0, len(contextIDs))
	for _, ctxID := range contextIDs {
		if ev, ok := byContext[ctxID]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ContactCreator bulk-creates emergency contacts, enforcing at most one
// primary contact per input batch.
type ContactCreator struct {
	deps     Deps
	detector *dup.ContactDetector
}

// NewContactCreator wires an emergency contact creator.
func NewContactCreator(deps Deps, detector *dup.ContactDetector) *ContactCreator {
	return &ContactCreator{deps: deps, detector: detector}
}

// CreateContacts processes each input through schema and duplicate checks.
// With ensureOnePrimary, the first is_primary input keeps the flag and
// every later one is demoted before being written.
func (c *ContactCreator) CreateContacts(ctx context.Context, userID string, items []map[string]any, ensureOnePrimary bool) (Summary, error) {
	b, err := c.deps.Tracker.Create(ctx, userID, "emergency_contact", "bulk_create",
		fmt.Sprintf("bulk create of %d contacts", len(items)))
	if err != nil {
		return Summary{}, err
	}

	primarySeen := false
	return runBatch(ctx, c.deps, b, items, func(ctx context.Context, entityID string, item map[string]any) error {
		payload := withUserID(item, userID)

		if ensureOnePrimary && boolField(payload, "is_primary") {
			if primarySeen {
				payload["is_primary"] = false
			} else {
				primarySeen = true
			}
		}

		if err := c.deps.Schemas.Validate("emergency_contact", payload); err != nil {
			return err
		}

		existing, err := c.detector.DetectDuplicate(ctx, stringField(payload, "phone"), stringField(payload, "name"), userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("duplicate of existing contact %s", existing.ContextID)
		}

		return appendEntity(ctx, c.deps.Client, "emergency_contact", entityID, payload)
	})
}

// SessionCreator bulk-creates meditation sessions under the global content
// scope.
type SessionCreator struct {
	deps     Deps
	detector *dup.MeditationDetector
}

// NewSessionCreator wires a meditation session creator.
func NewSessionCreator(deps Deps, detector *dup.MeditationDetector) *SessionCreator {
	return &SessionCreator{deps: deps, detector: detector}
}

// CreateSessions processes each input through schema and near-exact
// duplicate checks. Sessions are shared content; the batch is tracked
// under the system scope, not a user.
func (c *SessionCreator) CreateSessions(ctx context.Context, items []map[string]any) (Summary, error) {
	b, err := c.deps.Tracker.Create(ctx, dup.MeditationUserScope, "meditation_session", "bulk_create",
		fmt.Sprintf("bulk create of %d sessions", len(items)))
	if err != nil {
		return Summary{}, err
	}

	return runBatch(ctx, c.deps, b, items, func(ctx context.Context, entityID string, item map[string]any) error {
		payload := copyPayload(item)
		payload["user_id"] = dup.MeditationUserScope

		if err := c.deps.Schemas.Validate("meditation_session", payload); err != nil {
			return err
		}

		existing, err := c.detector.DetectDuplicate(ctx, stringField(payload, "title"), stringField(payload, "category"), 10)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("duplicate of existing session %s", existing.ContextID)
		}

		return appendEntity(ctx, c.deps.Client, "meditation_session", entityID, payload)
	})
}

// runBatch drives the per-item loop shared by every creator: attempt the
// item, record the outcome, keep going, then append the completion rollup.
func runBatch(ctx context.Context, deps Deps, b Batch, items []map[string]any, createOne func(context.Context, string, map[string]any) error) (Summary, error) {
	summary := Summary{Batch: b, TotalItems: len(items)}

	for i, item := range items {
		entityID := locus.NewID()
		err := createOne(ctx, entityID, item)
		if err != nil {
			deps.logger().Warn("batch item failed",
				"batch", b.ContextID, "index", i, "error", err)
			summary.FailedItems++
			summary.Items = append(summary.Items, ItemResult{EntityID: entityID, Success: false, ErrorMessage: err.Error()})
			if err := deps.Tracker.AddEntity(ctx, b, entityID, false, err.Error()); err != nil {
				return summary, err
			}
			continue
		}

		summary.SuccessfulItems++
		summary.EntityIDs = append(summary.EntityIDs, entityID)
		summary.Items = append(summary.Items, ItemResult{EntityID: entityID, Success: true})
		if err := deps.Tracker.AddEntity(ctx, b, entityID, true, ""); err != nil {
			return summary, err
		}
	}

	if err := deps.Tracker.Complete(ctx, b, summary.TotalItems, summary.SuccessfulItems, summary.FailedItems, summary.EntityIDs); err != nil {
		return summary, err
	}
	return summary, nil
}

func appendEntity(ctx context.Context, client locus.Client, entityType, entityID string, payload map[string]any) error {
	res, err := client.Append(ctx, locus.AppendRequest{
		Kind:      entityType + ".create",
		ContextID: entityType + ":" + entityID,
		Payload:   payload,
		Source:    "batch",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("store rejected %s: %s", entityType, res.ErrorMessage)
	}
	return nil
}

func withUserID(item map[string]any, userID string) map[string]any {
	payload := copyPayload(item)
	payload["user_id"] = userID
	return payload
}

func copyPayload(item map[string]any) map[string]any {
	out := make(map[string]any, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	return out
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func boolField(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
