package locus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locuscore/internal/clock"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) clock.Clock {
	return clock.Func(func() time.Time { return at })
}

func TestMemoryClient_AppendAssignsIDAndTimestamp(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))

	res, err := c.Append(context.Background(), AppendRequest{
		Kind:      "appointment.create",
		ContextID: "appointment:a-1",
		Payload:   map[string]any{"title": "Checkup"},
		RelatedTo: []string{"user:u-1"},
		Source:    "test",
	})
	require.NoError(t, err)
	assert.True(t, res.Stored())
	assert.Equal(t, "mem-000001", res.EventID)

	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, testNow, events[0].Timestamp)
	assert.Equal(t, []string{"user:u-1"}, events[0].RelatedTo)
}

func TestMemoryClient_SearchContextScoped(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "a"} {
		_, err := c.Append(ctx, AppendRequest{Kind: "k", ContextID: "ctx:" + id})
		require.NoError(t, err)
	}

	events, err := c.Search(ctx, SearchRequest{ContextIDs: []string{"ctx:a"}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "ctx:a", ev.ContextID)
	}
}

func TestMemoryClient_NewestFirstWithInsertionTieBreak(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	_, err := c.Append(ctx, AppendRequest{Kind: "first", ContextID: "ctx:a"})
	require.NoError(t, err)
	_, err = c.Append(ctx, AppendRequest{Kind: "second", ContextID: "ctx:a"})
	require.NoError(t, err)

	events, err := c.Search(ctx, SearchRequest{ContextIDs: []string{"ctx:a"}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Kind, "equal timestamps rank the later append first")
}

func TestMemoryClient_QueryTokenMatch(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	_, err := c.Append(ctx, AppendRequest{
		Kind:      "appointment.create",
		ContextID: "appointment:a-1",
		Payload:   map[string]any{"title": "Annual Checkup", "user_id": "u-1"},
	})
	require.NoError(t, err)

	events, err := c.Search(ctx, SearchRequest{Query: "checkup"})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// field:value tokens match on the value side.
	events, err = c.Search(ctx, SearchRequest{Query: "user_id:u-1"})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = c.Search(ctx, SearchRequest{Query: "nothing_matches_this"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryClient_ContextTypesFilter(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	_, err := c.Append(ctx, AppendRequest{
		Kind:      "reminder.scheduled",
		ContextID: "reminder_scheduled:r-1",
		Payload: map[string]any{
			"metadata": map[string]any{"temporal": map[string]any{"type": "due"}},
		},
	})
	require.NoError(t, err)
	_, err = c.Append(ctx, AppendRequest{Kind: "appointment.create", ContextID: "appointment:a-1"})
	require.NoError(t, err)

	events, err := c.Search(ctx, SearchRequest{
		ContextTypes: map[string][]string{"reminder.scheduled": {"due"}},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "reminder.scheduled", events[0].Kind)

	// A kind entry with no tags matches any event of that kind.
	events, err = c.Search(ctx, SearchRequest{
		ContextTypes: map[string][]string{"appointment.create": {}},
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryClient_Limit(t *testing.T) {
	clk := fixedClock(testNow)
	c := NewMemoryClient(WithClock(clk))
	ctx := context.Background()

	for range 5 {
		_, err := c.Append(ctx, AppendRequest{Kind: "k", ContextID: "ctx:a"})
		require.NoError(t, err)
	}

	events, err := c.Search(ctx, SearchRequest{ContextIDs: []string{"ctx:a"}, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestMemoryClient_InjectedFailures(t *testing.T) {
	c := NewMemoryClient(WithClock(fixedClock(testNow)))
	ctx := context.Background()

	c.SetAppendError(ErrStoreUnavailable)
	_, err := c.Append(ctx, AppendRequest{Kind: "k"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	c.SetAppendError(nil)

	c.SetAppendRejection("rejected", "too large")
	res, err := c.Append(ctx, AppendRequest{Kind: "k"})
	require.NoError(t, err)
	assert.False(t, res.Stored())
	assert.Equal(t, "too large", res.ErrorMessage)
	c.SetAppendRejection("", "")

	c.SetSearchError(ErrStoreUnavailable)
	_, err = c.Search(ctx, SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestStoreError_Unwrap(t *testing.T) {
	err := &StoreError{Op: "append", Err: ErrStoreUnavailable}
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "append")
}
