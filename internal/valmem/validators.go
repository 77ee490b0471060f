package valmem

import (
	"context"
	"strings"
)

// Rejection is a structured validation rejection. It is a value, not an
// error: rejected input is an expected outcome, never retried.
type Rejection struct {
	ErrorType string
	Message   string
	// Remembered is true when the rejection came from a recalled failure
	// pattern rather than a fresh format check.
	Remembered bool
}

// URLValidator validates URLs and learns from failures.
type URLValidator struct {
	mem *Memory
}

// NewURLValidator creates a URL validator over the given memory.
func NewURLValidator(mem *Memory) *URLValidator {
	return &URLValidator{mem: mem}
}

// Validate checks a URL against remembered failures, then format rules.
// A nil Rejection means the URL is acceptable. Fresh failures are
// remembered so sibling URLs on the same domain are rejected cheaply.
func (v *URLValidator) Validate(ctx context.Context, url, userID string) (*Rejection, error) {
	known, err := v.mem.CheckKnownFailures(ctx, url, "invalid_url", userID, DefaultToleranceWindow)
	if err != nil {
		return nil, err
	}
	if known != nil {
		msg := known.PayloadString("error_message")
		if msg == "" {
			msg = "this URL is known to be invalid"
		}
		return &Rejection{ErrorType: "invalid_url", Message: msg, Remembered: true}, nil
	}

	if url == "" {
		return v.reject(ctx, url, "URL cannot be empty", userID)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return v.reject(ctx, url, "URL must start with http:// or https://", userID)
	}
	return nil, nil
}

func (v *URLValidator) reject(ctx context.Context, url, msg, userID string) (*Rejection, error) {
	if _, err := v.mem.RememberFailure(ctx, "invalid_url", url, msg, userID, nil); err != nil {
		return nil, err
	}
	return &Rejection{ErrorType: "invalid_url", Message: msg}, nil
}

// MarkFailure records a URL failure observed outside validation, such as a
// connection error at fetch time.
func (v *URLValidator) MarkFailure(ctx context.Context, url, errorMessage, userID string) error {
	_, err := v.mem.RememberFailure(ctx, "invalid_url", url, errorMessage, userID, nil)
	return err
}

// MarkSuccess records that a URL worked.
func (v *URLValidator) MarkSuccess(ctx context.Context, url, userID string) error {
	_, err := v.mem.RememberSuccess(ctx, "url", url, userID, nil)
	return err
}

// PhoneValidator validates phone numbers and learns from failures.
type PhoneValidator struct {
	mem *Memory
}

// NewPhoneValidator creates a phone validator over the given memory.
func NewPhoneValidator(mem *Memory) *PhoneValidator {
	return &PhoneValidator{mem: mem}
}

// Validate checks a phone number against remembered failures, then format
// rules. A nil Rejection means the number is acceptable.
func (v *PhoneValidator) Validate(ctx context.Context, phone, userID string) (*Rejection, error) {
	known, err := v.mem.CheckKnownFailures(ctx, phone, "invalid_phone", userID, DefaultToleranceWindow)
	if err != nil {
		return nil, err
	}
	if known != nil {
		msg := known.PayloadString("error_message")
		if msg == "" {
			msg = "this phone number format is invalid"
		}
		return &Rejection{ErrorType: "invalid_phone", Message: msg, Remembered: true}, nil
	}

	if phone == "" {
		return v.reject(ctx, phone, "phone number cannot be empty", userID)
	}
	if len(nonPhoneRunes.ReplaceAllString(phone, "")) < 10 {
		return v.reject(ctx, phone, "phone number must have at least 10 digits", userID)
	}
	return nil, nil
}

func (v *PhoneValidator) reject(ctx context.Context, phone, msg, userID string) (*Rejection, error) {
	if _, err := v.mem.RememberFailure(ctx, "invalid_phone", phone, msg, userID, nil); err != nil {
		return nil, err
	}
	return &Rejection{ErrorType: "invalid_phone", Message: msg}, nil
}

// MarkFailure records an externally observed phone failure.
func (v *PhoneValidator) MarkFailure(ctx context.Context, phone, errorMessage, userID string) error {
	_, err := v.mem.RememberFailure(ctx, "invalid_phone", phone, errorMessage, userID, nil)
	return err
}

// MarkSuccess records that a phone number validated.
func (v *PhoneValidator) MarkSuccess(ctx context.Context, phone, userID string) error {
	_, err := v.mem.RememberSuccess(ctx, "phone", phone, userID, nil)
	return err
}
