package dup

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Field classes. Weights reflect how strongly a shared field suggests the
// same real-world entity.
func fieldWeight(key string) float64 {
	switch key {
	case "title", "name", "doctor_name":
		return 2.0
	case "scheduled_at", "time":
		return 3.0
	case "location", "phone":
		return 1.5
	default:
		return 1.0
	}
}

func isTimeField(key string) bool {
	return key == "scheduled_at" || key == "time" || key == "created_at"
}

func isIdentifierField(key string) bool {
	return key == "phone" || key == "email"
}

// Score computes the weighted similarity of a candidate payload against the
// query fields. Only non-empty query-side fields are scored: a field the
// candidate lacks contributes zero similarity at full weight, which is what
// makes scoring asymmetric when the two sides carry different field sets.
// Extra candidate fields are ignored. The result is always within [0, 1];
// with no scorable query fields it is 0.
func Score(searchFields, payload map[string]any) float64 {
	var totalScore, totalWeight float64

	for key, searchValue := range searchFields {
		searchStr := normalize(searchValue)
		if searchStr == "" {
			continue
		}

		weight := fieldWeight(key)
		totalWeight += weight

		payloadStr := normalize(payload[key])
		if payloadStr == "" {
			continue
		}

		var similarity float64
		switch {
		case isTimeField(key):
			similarity = timeSimilarity(searchStr, payloadStr)
		case isIdentifierField(key):
			if searchStr == payloadStr {
				similarity = 1.0
			}
		default:
			similarity = textSimilarity(searchStr, payloadStr)
		}

		totalScore += similarity * weight
	}

	if totalWeight == 0 {
		return 0.0
	}
	return totalScore / totalWeight
}

func normalize(v any) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
}

// textSimilarity: exact match, containment, then Jaccard overlap of
// whitespace-tokenized word sets.
func textSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// timeSimilarity is a step function of the absolute difference in minutes.
// Unparseable values score 0.
func timeSimilarity(a, b string) float64 {
	ta, okA := parseTime(a)
	tb, okB := parseTime(b)
	if !okA || !okB {
		return 0.0
	}

	diffMinutes := math.Abs(ta.Sub(tb).Minutes())
	switch {
	case diffMinutes < 5:
		return 1.0
	case diffMinutes < 15:
		return 0.9
	case diffMinutes < 30:
		return 0.7
	case diffMinutes < 60:
		return 0.5
	case diffMinutes < 120:
		return 0.3
	case diffMinutes < 1440: // 24 hours
		return 0.1
	default:
		return 0.0
	}
}

func parseTime(s string) (time.Time, bool) {
	// Values arrive lowercased by normalize; RFC 3339 wants T and Z upper.
	s = strings.ToUpper(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
