package temporal

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locuscore/internal/locus"
	"locuscore/internal/testutil"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *locus.MemoryClient, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(testNow)
	client := locus.NewMemoryClient(locus.WithClock(clk))
	log := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	return NewScheduler(client, clk, log), client, clk
}

func TestScheduleReminder(t *testing.T) {
	s, client, _ := newTestScheduler(t)

	eventTime := testNow.Add(2 * time.Hour)
	r, err := s.ScheduleReminder(context.Background(), ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-1",
		EventTime:        eventTime,
		MinutesBefore:    30,
		UserID:           "u-1",
		Title:            "Annual Checkup",
	})
	require.NoError(t, err)

	assert.Equal(t, eventTime.Add(-30*time.Minute), r.TriggerAt)
	assert.Equal(t, StatusScheduled, r.Status)

	events := client.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, KindReminderScheduled, ev.Kind)
	assert.Equal(t, r.ContextID, ev.ContextID)
	assert.Equal(t, []string{"appointment:apt-1"}, ev.RelatedTo)
	assert.Equal(t, r.TriggerAt.Format(time.RFC3339), ev.PayloadString("trigger_at"))

	// The payload carries a "due" envelope anchored at the trigger time.
	assert.True(t, EnvelopeTime(ev.Payload).Equal(r.TriggerAt))
}

func TestDueReminders_NeverReturnsFuture(t *testing.T) {
	s, _, clk := newTestScheduler(t)
	ctx := context.Background()

	// Trigger 30 minutes ago.
	overdue, err := s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-1",
		EventTime:        testNow.Add(30 * time.Minute),
		MinutesBefore:    60,
		UserID:           "u-1",
		Title:            "Overdue",
	})
	require.NoError(t, err)

	// Trigger 90 minutes from now.
	_, err = s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-2",
		EventTime:        testNow.Add(2 * time.Hour),
		MinutesBefore:    30,
		UserID:           "u-1",
		Title:            "Future",
	})
	require.NoError(t, err)

	due, err := s.DueReminders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, overdue.ContextID, due[0].ContextID)

	// Once the clock passes the second trigger, both are due.
	clk.Advance(2 * time.Hour)
	due, err = s.DueReminders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDueReminders_SkipsTerminalStatuses(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	sent, err := s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-1",
		EventTime:        testNow.Add(-time.Hour),
		MinutesBefore:    0,
		UserID:           "u-1",
	})
	require.NoError(t, err)
	cancelled, err := s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-2",
		EventTime:        testNow.Add(-time.Hour),
		MinutesBefore:    0,
		UserID:           "u-1",
	})
	require.NoError(t, err)
	open, err := s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-3",
		EventTime:        testNow.Add(-time.Hour),
		MinutesBefore:    0,
		UserID:           "u-1",
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkReminderSent(ctx, sent.ContextID))
	require.NoError(t, s.CancelReminder(ctx, cancelled.ContextID))

	due, err := s.DueReminders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, open.ContextID, due[0].ContextID)
}

func TestGetReminder_FoldsStatus(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	r, err := s.ScheduleReminder(ctx, ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-1",
		EventTime:        testNow.Add(time.Hour),
		MinutesBefore:    15,
		UserID:           "u-1",
		Title:            "Checkup",
	})
	require.NoError(t, err)

	got, ok, err := s.GetReminder(ctx, r.ContextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, "Checkup", got.Title)

	require.NoError(t, s.MarkReminderSent(ctx, r.ContextID))

	got, ok, err = s.GetReminder(ctx, r.ContextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusSent, got.Status)

	_, ok, err = s.GetReminder(ctx, "reminder_scheduled:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTemporalContexts_FiltersLocally(t *testing.T) {
	s, client, _ := newTestScheduler(t)
	ctx := context.Background()

	appendEnriched := func(entityID string, ts time.Time) {
		payload := Enrich(map[string]any{
			"user_id": "u-1",
			"title":   "Appointment " + entityID,
		}, TypeUpcoming, ts, testNow)
		_, err := client.Append(ctx, locus.AppendRequest{
			Kind:      "appointment.create",
			ContextID: "appointment:" + entityID,
			Payload:   payload,
		})
		require.NoError(t, err)
	}

	appendEnriched("past", testNow.Add(-2*time.Hour))
	appendEnriched("soon", testNow.Add(2*time.Hour))
	appendEnriched("nextweek", testNow.Add(8*24*time.Hour))

	upcoming, err := s.TemporalContexts(ctx, "u-1", TypeUpcoming, nil, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)

	window := NextDays(testNow, 7)
	upcoming, err = s.TemporalContexts(ctx, "u-1", TypeUpcoming, &window, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "appointment:soon", upcoming[0].ContextID)

	past, err := s.TemporalContexts(ctx, "u-1", TypePast, nil, 10)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, "appointment:past", past[0].ContextID)

	// Other users never leak in.
	other, err := s.TemporalContexts(ctx, "u-2", TypeUpcoming, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestScheduleReminder_StoreErrorPropagates(t *testing.T) {
	s, client, _ := newTestScheduler(t)
	client.SetAppendError(locus.ErrStoreUnavailable)

	_, err := s.ScheduleReminder(context.Background(), ReminderRequest{
		TargetEntityType: "appointment",
		TargetEntityID:   "apt-1",
		EventTime:        testNow.Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, locus.IsUnavailable(err))
}
