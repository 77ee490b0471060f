package batch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locuscore/internal/dup"
	"locuscore/internal/locus"
	"locuscore/internal/schema"
	"locuscore/internal/temporal"
	"locuscore/internal/testutil"
)

type creatorFixture struct {
	deps      Deps
	client    *locus.MemoryClient
	clk       *testutil.ManualClock
	detector  *dup.Detector
	scheduler *temporal.Scheduler
}

func newCreatorFixture(t *testing.T) *creatorFixture {
	t.Helper()
	clk := testutil.NewManualClock(testNow)
	client := locus.NewMemoryClient(locus.WithClock(clk))
	log := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	schemas, err := schema.NewRegistry()
	require.NoError(t, err)

	return &creatorFixture{
		deps: Deps{
			Client:  client,
			Clock:   clk,
			Log:     log,
			Tracker: NewTracker(client, clk, log),
			Schemas: schemas,
		},
		client:    client,
		clk:       clk,
		detector:  dup.NewDetector(client, clk, log),
		scheduler: temporal.NewScheduler(client, clk, log),
	}
}

func (f *creatorFixture) appointments() *AppointmentCreator {
	return NewAppointmentCreator(f.deps, dup.NewAppointmentDetector(f.detector), f.scheduler)
}

func (f *creatorFixture) contacts() *ContactCreator {
	return NewContactCreator(f.deps, dup.NewContactDetector(f.detector))
}

func (f *creatorFixture) sessions() *SessionCreator {
	return NewSessionCreator(f.deps, dup.NewMeditationDetector(f.detector))
}

func (f *creatorFixture) eventsOfKind(kind string) []locus.Event {
	var out []locus.Event
	for _, ev := range f.client.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestCreateAppointments_PartialFailure(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.appointments()

	summary, err := c.CreateAppointments(context.Background(), "u-1", []map[string]any{
		{"title": "Checkup", "scheduled_at": testNow.Add(time.Hour).Format(time.RFC3339)},
		{"scheduled_at": testNow.Add(2 * time.Hour).Format(time.RFC3339)}, // no title
		{"title": "Dentist", "scheduled_at": testNow.Add(3 * time.Hour).Format(time.RFC3339)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 2, summary.SuccessfulItems)
	assert.Equal(t, 1, summary.FailedItems)
	assert.Len(t, summary.EntityIDs, 2)
	require.Len(t, summary.Items, 3)
	assert.False(t, summary.Items[1].Success)
	assert.NotEmpty(t, summary.Items[1].ErrorMessage)

	// The rollup on the batch context agrees with the summary.
	st, ok, err := f.deps.Tracker.GetBatchStatus(context.Background(), summary.Batch.ContextID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 2, st.SuccessfulItems)
	assert.Equal(t, 1, st.FailedItems)
	assert.Equal(t, summary.EntityIDs, st.EntityIDs)

	assert.Len(t, f.eventsOfKind("appointment.create"), 2)
}

func TestCreateAppointments_DuplicateInBatch(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.appointments()

	item := map[string]any{
		"title":        "Annual Checkup",
		"scheduled_at": testNow.Add(10 * time.Minute).Format(time.RFC3339),
	}
	summary, err := c.CreateAppointments(context.Background(), "u-1", []map[string]any{item, item})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SuccessfulItems)
	assert.Equal(t, 1, summary.FailedItems)
	assert.Contains(t, summary.Items[1].ErrorMessage, "duplicate")
}

func TestCreateAppointments_SchedulesReminders(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.appointments()

	scheduledAt := testNow.Add(2 * time.Hour)
	summary, err := c.CreateAppointments(context.Background(), "u-1", []map[string]any{
		{
			"title":                   "Checkup",
			"scheduled_at":            scheduledAt.Format(time.RFC3339),
			"reminder_minutes_before": 30,
		},
	})
	require.NoError(t, err)
	require.Len(t, summary.EntityIDs, 1)

	reminders := f.eventsOfKind(temporal.KindReminderScheduled)
	require.Len(t, reminders, 1)
	assert.Equal(t, []string{"appointment:" + summary.EntityIDs[0]}, reminders[0].RelatedTo)
	assert.Equal(t,
		scheduledAt.Add(-30*time.Minute).Format(time.RFC3339),
		reminders[0].PayloadString("trigger_at"))
}

func TestGetBatchAppointments(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.appointments()
	ctx := context.Background()

	summary, err := c.CreateAppointments(ctx, "u-1", []map[string]any{
		{"title": "First", "scheduled_at": testNow.Add(time.Hour).Format(time.RFC3339)},
		{"title": "Second", "scheduled_at": testNow.Add(2 * time.Hour).Format(time.RFC3339)},
	})
	require.NoError(t, err)
	require.Len(t, summary.EntityIDs, 2)

	events, err := c.GetBatchAppointments(ctx, summary.Batch.ContextID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "First", events[0].PayloadString("title"))
	assert.Equal(t, "Second", events[1].PayloadString("title"))
}

func TestCreateContacts_EnsureOnePrimary(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.contacts()

	summary, err := c.CreateContacts(context.Background(), "u-1", []map[string]any{
		{"name": "Ada", "phone": "+15551110001", "is_primary": true},
		{"name": "Grace", "phone": "+15551110002", "is_primary": true},
		{"name": "Edsger", "phone": "+15551110003"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.SuccessfulItems)

	var primaries []string
	for _, ev := range f.eventsOfKind("emergency_contact.create") {
		if ev.PayloadBool("is_primary") {
			primaries = append(primaries, ev.PayloadString("name"))
		}
	}
	assert.Equal(t, []string{"Ada"}, primaries, "first primary in input order wins")
}

func TestCreateContacts_DuplicatePhoneFails(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.contacts()

	summary, err := c.CreateContacts(context.Background(), "u-1", []map[string]any{
		{"name": "Ada Lovelace", "phone": "+15551110001"},
		{"name": "A. Lovelace", "phone": "+15551110001"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessfulItems)
	assert.Equal(t, 1, summary.FailedItems)
	assert.Contains(t, summary.Items[1].ErrorMessage, "duplicate")
}

func TestCreateSessions_GlobalScope(t *testing.T) {
	f := newCreatorFixture(t)
	c := f.sessions()

	summary, err := c.CreateSessions(context.Background(), []map[string]any{
		{"title": "Morning Breathing", "category": "breathing", "duration": 10},
		{"title": "Morning Breathing", "category": "breathing", "duration": 10},
		{"title": "Deep Sleep", "category": "sleep", "duration": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessfulItems)
	assert.Equal(t, 1, summary.FailedItems)

	for _, ev := range f.eventsOfKind("meditation_session.create") {
		assert.Equal(t, dup.MeditationUserScope, ev.PayloadString("user_id"))
	}
	assert.Equal(t, dup.MeditationUserScope, summary.Batch.UserID)
}

func TestCreateAppointments_StoreErrorOnRootPropagates(t *testing.T) {
	f := newCreatorFixture(t)
	f.client.SetAppendError(locus.ErrStoreUnavailable)

	_, err := f.appointments().CreateAppointments(context.Background(), "u-1", []map[string]any{
		{"title": "Checkup", "scheduled_at": testNow.Add(time.Hour).Format(time.RFC3339)},
	})
	require.Error(t, err)
	assert.True(t, locus.IsUnavailable(err))
}
