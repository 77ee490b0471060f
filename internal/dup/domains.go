package dup

import (
	"context"
	"time"

	"locuscore/internal/locus"
)

// Per-domain thresholds. Appointments tolerate fuzz (same checkup retyped
// slightly differently); meditation sessions are near-exact content.
const (
	appointmentThreshold     = 0.8
	appointmentDuplicateBar  = 0.9
	contactNameThreshold     = 0.9
	contactNameDuplicateBar  = 0.95
	meditationThreshold      = 0.95
	DefaultAppointmentWindow = 30 * time.Minute
)

// MeditationUserScope is the pseudo-user meditation sessions live under:
// sessions are global content, not per-user records.
const MeditationUserScope = "system"

// AppointmentQuery describes a prospective appointment to check.
type AppointmentQuery struct {
	Title       string
	ScheduledAt time.Time
	DoctorName  string
	Location    string
	UserID      string
	// TimeWindow bounds the candidate scan; zero means
	// DefaultAppointmentWindow.
	TimeWindow time.Duration
}

// AppointmentDetector flags near-identical appointments.
type AppointmentDetector struct {
	det *Detector
}

// NewAppointmentDetector wraps the generic detector for appointments.
func NewAppointmentDetector(det *Detector) *AppointmentDetector {
	return &AppointmentDetector{det: det}
}

// DetectDuplicate returns an existing appointment that is very similar
// (score above 0.9) within the time window, or nil.
func (a *AppointmentDetector) DetectDuplicate(ctx context.Context, q AppointmentQuery) (*locus.Event, error) {
	window := q.TimeWindow
	if window <= 0 {
		window = DefaultAppointmentWindow
	}

	searchFields := map[string]any{
		"title":        q.Title,
		"scheduled_at": q.ScheduledAt.UTC().Format(time.RFC3339),
	}
	if q.DoctorName != "" {
		searchFields["doctor_name"] = q.DoctorName
	}
	if q.Location != "" {
		searchFields["location"] = q.Location
	}

	similar, err := a.det.DetectSimilar(ctx, "appointment", q.UserID, searchFields, appointmentThreshold, window, 10)
	if err != nil {
		return nil, err
	}
	if len(similar) > 0 && similar[0].Similarity > appointmentDuplicateBar {
		return &similar[0].Event, nil
	}
	return nil, nil
}

// ContactDetector flags duplicate emergency contacts.
type ContactDetector struct {
	det *Detector
}

// NewContactDetector wraps the generic detector for emergency contacts.
func NewContactDetector(det *Detector) *ContactDetector {
	return &ContactDetector{det: det}
}

// DetectDuplicate checks for an existing contact: the phone number is the
// primary identifier (exact match); failing that, a near-exact name match
// (score above 0.95) also counts.
func (c *ContactDetector) DetectDuplicate(ctx context.Context, phone, name, userID string) (*locus.Event, error) {
	duplicate, err := c.det.DetectExactDuplicate(ctx, "emergency_contact", userID, map[string]any{"phone": phone})
	if err != nil {
		return nil, err
	}
	if duplicate != nil {
		return duplicate, nil
	}

	if name == "" {
		return nil, nil
	}

	similar, err := c.det.DetectSimilar(ctx, "emergency_contact", userID, map[string]any{"name": name}, contactNameThreshold, 0, 10)
	if err != nil {
		return nil, err
	}
	if len(similar) > 0 && similar[0].Similarity > contactNameDuplicateBar {
		return &similar[0].Event, nil
	}
	return nil, nil
}

// CheckPrimaryContactExists returns the user's current primary contact, or
// nil. This is an exact scan, independent of similarity scoring.
func (c *ContactDetector) CheckPrimaryContactExists(ctx context.Context, userID string) (*locus.Event, error) {
	events, err := c.det.client.Search(ctx, locus.SearchRequest{
		Query: "emergency contact primary user " + userID,
		Limit: 10,
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.PayloadString("user_id") == userID && ev.PayloadBool("is_primary") {
			return &ev, nil
		}
	}
	return nil, nil
}

// MeditationDetector flags duplicate meditation sessions. Sessions are
// scoped globally under MeditationUserScope rather than per user.
type MeditationDetector struct {
	det *Detector
}

// NewMeditationDetector wraps the generic detector for meditation sessions.
func NewMeditationDetector(det *Detector) *MeditationDetector {
	return &MeditationDetector{det: det}
}

// DetectDuplicate returns an existing session with a near-exact title (and
// category when given), or nil.
func (m *MeditationDetector) DetectDuplicate(ctx context.Context, title, category string, limit int) (*locus.Event, error) {
	searchFields := map[string]any{"title": title}
	if category != "" {
		searchFields["category"] = category
	}

	similar, err := m.det.DetectSimilar(ctx, "meditation_session", MeditationUserScope, searchFields, meditationThreshold, 0, limit)
	if err != nil {
		return nil, err
	}
	if len(similar) > 0 && similar[0].Similarity >= meditationThreshold {
		return &similar[0].Event, nil
	}
	return nil, nil
}
