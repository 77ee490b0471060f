package dup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentDetector_FlagsNearIdentical(t *testing.T) {
	det, client, _ := newTestDetector(t)
	a := NewAppointmentDetector(det)
	ctx := context.Background()

	stored := storeEntity(t, client, "appointment", map[string]any{
		"user_id":      "u-1",
		"title":        "Annual Checkup",
		"doctor_name":  "Dr Smith",
		"scheduled_at": testNow.Add(10 * time.Minute).Format(time.RFC3339),
	})

	dupEvent, err := a.DetectDuplicate(ctx, AppointmentQuery{
		Title:       "Annual Checkup",
		ScheduledAt: testNow.Add(12 * time.Minute),
		DoctorName:  "Dr Smith",
		UserID:      "u-1",
	})
	require.NoError(t, err)
	require.NotNil(t, dupEvent)
	assert.Equal(t, stored.ID, dupEvent.ID)
}

func TestAppointmentDetector_DifferentTimeIsNotDuplicate(t *testing.T) {
	det, client, _ := newTestDetector(t)
	a := NewAppointmentDetector(det)
	ctx := context.Background()

	storeEntity(t, client, "appointment", map[string]any{
		"user_id":      "u-1",
		"title":        "Annual Checkup",
		"scheduled_at": testNow.Add(25 * time.Minute).Format(time.RFC3339),
	})

	// 25 minutes apart: time similarity 0.7 keeps the score at or below 0.9.
	dupEvent, err := a.DetectDuplicate(ctx, AppointmentQuery{
		Title:       "Annual Checkup",
		ScheduledAt: testNow,
		UserID:      "u-1",
	})
	require.NoError(t, err)
	assert.Nil(t, dupEvent)
}

func TestContactDetector_ExactPhoneWins(t *testing.T) {
	det, client, _ := newTestDetector(t)
	c := NewContactDetector(det)
	ctx := context.Background()

	stored := storeEntity(t, client, "emergency_contact", map[string]any{
		"user_id": "u-1",
		"name":    "Ada Lovelace",
		"phone":   "+15551234567",
	})

	dupEvent, err := c.DetectDuplicate(ctx, "+15551234567", "Completely Different", "u-1")
	require.NoError(t, err)
	require.NotNil(t, dupEvent)
	assert.Equal(t, stored.ID, dupEvent.ID)
}

func TestContactDetector_NearExactNameFallback(t *testing.T) {
	det, client, _ := newTestDetector(t)
	c := NewContactDetector(det)
	ctx := context.Background()

	stored := storeEntity(t, client, "emergency_contact", map[string]any{
		"user_id": "u-1",
		"name":    "Ada Lovelace",
		"phone":   "+15551234567",
	})

	dupEvent, err := c.DetectDuplicate(ctx, "+15559999999", "ada lovelace", "u-1")
	require.NoError(t, err)
	require.NotNil(t, dupEvent, "case-insensitive identical name is a duplicate")
	assert.Equal(t, stored.ID, dupEvent.ID)

	dupEvent, err = c.DetectDuplicate(ctx, "+15559999999", "Grace Hopper", "u-1")
	require.NoError(t, err)
	assert.Nil(t, dupEvent)
}

func TestContactDetector_CheckPrimaryContactExists(t *testing.T) {
	det, client, _ := newTestDetector(t)
	c := NewContactDetector(det)
	ctx := context.Background()

	primary, err := c.CheckPrimaryContactExists(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, primary)

	storeEntity(t, client, "emergency_contact", map[string]any{
		"user_id":    "u-1",
		"name":       "Ada",
		"phone":      "+15551234567",
		"is_primary": true,
	})
	storeEntity(t, client, "emergency_contact", map[string]any{
		"user_id":    "u-2",
		"name":       "Grace",
		"phone":      "+15557654321",
		"is_primary": true,
	})

	primary, err = c.CheckPrimaryContactExists(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, primary)
	assert.Equal(t, "Ada", primary.PayloadString("name"))
}

func TestMeditationDetector_GlobalScope(t *testing.T) {
	det, client, _ := newTestDetector(t)
	m := NewMeditationDetector(det)
	ctx := context.Background()

	stored := storeEntity(t, client, "meditation_session", map[string]any{
		"user_id":  MeditationUserScope,
		"title":    "Morning Breathing",
		"category": "breathing",
	})

	dupEvent, err := m.DetectDuplicate(ctx, "Morning Breathing", "breathing", 10)
	require.NoError(t, err)
	require.NotNil(t, dupEvent)
	assert.Equal(t, stored.ID, dupEvent.ID)

	dupEvent, err = m.DetectDuplicate(ctx, "Evening Wind-Down", "sleep", 10)
	require.NoError(t, err)
	assert.Nil(t, dupEvent)
}
