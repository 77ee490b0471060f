package cache

import (
	"context"
	"time"
)

// Cache keys and TTLs for the domain caches. Meditation sessions are
// static content and keep a long TTL; per-user lists churn and keep an
// hour.
const (
	meditationSessionsKey = "meditation_sessions"
	meditationSessionsTTL = 24 * time.Hour

	userAppointmentsKey = "user_appointments"
	userAppointmentsTTL = time.Hour

	userContactsKey = "user_emergency_contacts"
	userContactsTTL = time.Hour
)

// appointmentQueryTypes enumerates the query-type parameterizations an
// appointment cache entry can live under, for exact invalidation.
var appointmentQueryTypes = []string{"", "upcoming", "past", "today"}

// MeditationSessionCache caches the global meditation session list,
// optionally split by category.
type MeditationSessionCache struct {
	cache *Cache
}

// NewMeditationSessionCache wraps the generic cache.
func NewMeditationSessionCache(c *Cache) *MeditationSessionCache {
	return &MeditationSessionCache{cache: c}
}

func sessionParams(category string) map[string]any {
	if category == "" {
		return nil
	}
	return map[string]any{"category": category}
}

// GetSessions returns the cached session list for a category ("" = all).
func (m *MeditationSessionCache) GetSessions(ctx context.Context, category string) (any, bool, error) {
	return m.cache.Get(ctx, meditationSessionsKey, sessionParams(category))
}

// SetSessions caches the session list for a category.
func (m *MeditationSessionCache) SetSessions(ctx context.Context, category string, sessions []map[string]any) error {
	metadata := map[string]any{"category": category, "count": len(sessions)}
	_, err := m.cache.Set(ctx, meditationSessionsKey, sessions, meditationSessionsTTL, sessionParams(category), metadata)
	return err
}

// InvalidateSessions drops the cached list for a category, or every
// session list when category is empty (pattern-based, best-effort).
func (m *MeditationSessionCache) InvalidateSessions(ctx context.Context, category string) error {
	if category != "" {
		return m.cache.Invalidate(ctx, meditationSessionsKey, sessionParams(category))
	}
	_, err := m.cache.InvalidatePattern(ctx, meditationSessionsKey)
	return err
}

// AppointmentCache caches per-user appointment lists by query type.
type AppointmentCache struct {
	cache *Cache
}

// NewAppointmentCache wraps the generic cache.
func NewAppointmentCache(c *Cache) *AppointmentCache {
	return &AppointmentCache{cache: c}
}

func appointmentParams(userID, queryType string) map[string]any {
	return map[string]any{"user_id": userID, "query_type": queryType}
}

// GetAppointments returns the cached list for a user and query type
// ("", "upcoming", "past", "today").
func (a *AppointmentCache) GetAppointments(ctx context.Context, userID, queryType string) (any, bool, error) {
	return a.cache.Get(ctx, userAppointmentsKey, appointmentParams(userID, queryType))
}

// SetAppointments caches a user's appointment list for a query type.
func (a *AppointmentCache) SetAppointments(ctx context.Context, userID, queryType string, appointments []map[string]any) error {
	metadata := map[string]any{
		"user_id":    userID,
		"query_type": queryType,
		"count":      len(appointments),
	}
	_, err := a.cache.Set(ctx, userAppointmentsKey, appointments, userAppointmentsTTL, appointmentParams(userID, queryType), metadata)
	return err
}

// InvalidateUserAppointments drops every cached list for the user. The
// parameterizations are enumerable, so invalidation is exact rather than
// pattern-based.
func (a *AppointmentCache) InvalidateUserAppointments(ctx context.Context, userID string) error {
	for _, queryType := range appointmentQueryTypes {
		if err := a.cache.Invalidate(ctx, userAppointmentsKey, appointmentParams(userID, queryType)); err != nil {
			return err
		}
	}
	return nil
}

// EmergencyContactCache caches per-user emergency contact lists.
type EmergencyContactCache struct {
	cache *Cache
}

// NewEmergencyContactCache wraps the generic cache.
func NewEmergencyContactCache(c *Cache) *EmergencyContactCache {
	return &EmergencyContactCache{cache: c}
}

func contactParams(userID string) map[string]any {
	return map[string]any{"user_id": userID}
}

// GetContacts returns the cached contact list for a user.
func (e *EmergencyContactCache) GetContacts(ctx context.Context, userID string) (any, bool, error) {
	return e.cache.Get(ctx, userContactsKey, contactParams(userID))
}

// SetContacts caches a user's contact list.
func (e *EmergencyContactCache) SetContacts(ctx context.Context, userID string, contacts []map[string]any) error {
	metadata := map[string]any{"user_id": userID, "count": len(contacts)}
	_, err := e.cache.Set(ctx, userContactsKey, contacts, userContactsTTL, contactParams(userID), metadata)
	return err
}

// InvalidateContacts drops the user's cached contact list.
func (e *EmergencyContactCache) InvalidateContacts(ctx context.Context, userID string) error {
	return e.cache.Invalidate(ctx, userContactsKey, contactParams(userID))
}
