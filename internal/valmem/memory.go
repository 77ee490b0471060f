package valmem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"locuscore/internal/clock"
	"locuscore/internal/locus"
)

// Event kinds and context prefix for validation patterns.
const (
	KindValidationFailed = "validation.failed"
	KindValidationPassed = "validation.passed"

	patternContextPrefix = "validation_pattern"
)

// DefaultToleranceWindow bounds how old a remembered failure may be and
// still reject a new value.
const DefaultToleranceWindow = 24 * time.Hour

// Memory stores and recalls validation patterns.
type Memory struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
}

// NewMemory creates a validation memory over the given store client.
func NewMemory(client locus.Client, clk clock.Clock, log *slog.Logger) *Memory {
	if log == nil {
		log = slog.Default()
	}
	return &Memory{client: client, clk: clk, log: log}
}

// PatternContext renders the context id a value's pattern lives under.
func PatternContext(errorType, pattern string) string {
	return fmt.Sprintf("%s:%s:%s", patternContextPrefix, errorType, pattern)
}

// RememberFailure stores a validation failure for future checks and returns
// the pattern context id. A repeat failure of a known pattern reinforces
// the existing context instead of starting a fresh one.
func (m *Memory) RememberFailure(ctx context.Context, errorType, value, errorMessage, userID string, additional map[string]any) (string, error) {
	pattern := ExtractPattern(value, errorType)
	patternCtx := PatternContext(errorType, pattern)

	payload := map[string]any{
		"error_type":         errorType,
		"value":              value,
		"pattern":            pattern,
		"error_message":      errorMessage,
		"user_id":            userID,
		"failed_at":          m.clk.Now().Format(time.RFC3339),
		"additional_context": additional,
	}

	existing, err := m.client.Search(ctx, locus.SearchRequest{
		Query:      fmt.Sprintf("validation failed pattern %s", pattern),
		ContextIDs: []string{patternCtx},
		Limit:      1,
	})
	if err != nil {
		return "", err
	}

	req := locus.AppendRequest{
		Kind:      KindValidationFailed,
		ContextID: patternCtx,
		Payload:   payload,
		Source:    "validator",
	}
	if len(existing) > 0 {
		req.Reinforces = []string{patternCtx}
	}

	if _, err := m.client.Append(ctx, req); err != nil {
		return "", err
	}

	m.log.Debug("validation failure remembered",
		"error_type", errorType,
		"pattern", pattern)
	return patternCtx, nil
}

// RememberSuccess stores a validation success, contradicting any earlier
// failure of the same pattern.
func (m *Memory) RememberSuccess(ctx context.Context, validationType, value, userID string, additional map[string]any) (string, error) {
	pattern := ExtractPattern(value, validationType)
	patternCtx := PatternContext(validationType, pattern)

	payload := map[string]any{
		"validation_type":    validationType,
		"value":              value,
		"pattern":            pattern,
		"user_id":            userID,
		"validated_at":       m.clk.Now().Format(time.RFC3339),
		"additional_context": additional,
	}

	if _, err := m.client.Append(ctx, locus.AppendRequest{
		Kind:        KindValidationPassed,
		ContextID:   patternCtx,
		Payload:     payload,
		Contradicts: []string{fmt.Sprintf("%s:%s", KindValidationFailed, patternCtx)},
		Source:      "validator",
	}); err != nil {
		return "", err
	}
	return patternCtx, nil
}

// CheckKnownFailures looks for a remembered failure matching the value's
// pattern within the tolerance window. Returns nil when none applies; the
// search is candidate generation only, the recency cut happens here.
func (m *Memory) CheckKnownFailures(ctx context.Context, value, errorType, userID string, tolerance time.Duration) (*locus.Event, error) {
	if tolerance <= 0 {
		tolerance = DefaultToleranceWindow
	}

	pattern := ExtractPattern(value, errorType)
	patternCtx := PatternContext(errorType, pattern)

	query := fmt.Sprintf("validation failed %s pattern %s", errorType, pattern)
	if userID != "" {
		query += " user " + userID
	}

	candidates, err := m.client.Search(ctx, locus.SearchRequest{
		Query:      query,
		ContextIDs: []string{patternCtx},
		Limit:      5,
	})
	if err != nil {
		return nil, err
	}

	now := m.clk.Now()
	for _, ev := range candidates {
		if ev.Kind != KindValidationFailed {
			continue
		}
		failedAt := ev.PayloadTime("failed_at")
		if failedAt.IsZero() {
			continue
		}
		if now.Sub(failedAt) <= tolerance {
			return &ev, nil
		}
	}
	return nil, nil
}

// FailureStats summarizes recent validation failures.
type FailureStats struct {
	TotalFailures      int
	ByErrorType        map[string]int
	ByPattern          map[string]int
	MostCommonPatterns []PatternCount
}

// PatternCount pairs a pattern with its failure count.
type PatternCount struct {
	Pattern string
	Count   int
}

// GetFailureStats aggregates failures within the given look-back window,
// optionally restricted to one error type.
func (m *Memory) GetFailureStats(ctx context.Context, errorType string, lookback time.Duration) (FailureStats, error) {
	query := "validation failures"
	if errorType != "" {
		query += " " + errorType
	}

	candidates, err := m.client.Search(ctx, locus.SearchRequest{Query: query, Limit: 100})
	if err != nil {
		return FailureStats{}, err
	}

	stats := FailureStats{
		ByErrorType: make(map[string]int),
		ByPattern:   make(map[string]int),
	}

	now := m.clk.Now()
	for _, ev := range candidates {
		if ev.Kind != KindValidationFailed {
			continue
		}
		failedAt := ev.PayloadTime("failed_at")
		if failedAt.IsZero() || now.Sub(failedAt) > lookback {
			continue
		}
		if errorType != "" && ev.PayloadString("error_type") != errorType {
			continue
		}
		stats.TotalFailures++
		stats.ByErrorType[ev.PayloadString("error_type")]++
		stats.ByPattern[ev.PayloadString("pattern")]++
	}

	for pattern, count := range stats.ByPattern {
		stats.MostCommonPatterns = append(stats.MostCommonPatterns, PatternCount{pattern, count})
	}
	sort.Slice(stats.MostCommonPatterns, func(i, j int) bool {
		a, b := stats.MostCommonPatterns[i], stats.MostCommonPatterns[j]
		if a.Count == b.Count {
			return a.Pattern < b.Pattern
		}
		return a.Count > b.Count
	})
	if len(stats.MostCommonPatterns) > 10 {
		stats.MostCommonPatterns = stats.MostCommonPatterns[:10]
	}
	return stats, nil
}
