// Package keys computes the stable cache keys and context ids that let
// concurrent readers and writers address the same events by convention.
//
// Determinism is the whole point: the same inputs must produce the same
// digest in every process, or cache reads would miss writes made by a
// sibling. Hashing is SHA-256 with domain separation; parameters are
// serialized as canonical JSON (sorted keys, NFC-normalized strings) before
// hashing.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for hash separation. Version suffix enables future
// algorithm migration.
const (
	domainCacheKey = "locuscore/cache-key/v1"
	domainContext  = "locuscore/context/v1"
)

// CacheKey builds the stable cache key for a base key and optional
// parameters: "cache:<key>" without params, otherwise
// "cache:<key>:<8-hex digest of the canonical params JSON>".
func CacheKey(key string, params map[string]any) string {
	if len(params) == 0 {
		return "cache:" + key
	}
	digest := hashWithDomain(domainCacheKey, canonicalParams(params))
	return fmt.Sprintf("cache:%s:%s", key, digest[:8])
}

// ContextFor builds a context id from a prefix and a key:
// "<prefix>:<12-hex digest of key>".
func ContextFor(prefix, key string) string {
	digest := hashWithDomain(domainContext, []byte(norm.NFC.String(key)))
	return fmt.Sprintf("%s:%s", prefix, digest[:12])
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalParams serializes params deterministically: keys sorted
// bytewise, strings NFC-normalized and quoted, numbers in their shortest
// form, nested maps recursed. Unsupported value types fall back to their
// fmt rendering, quoted, so a digest always exists.
func canonicalParams(params map[string]any) []byte {
	var b strings.Builder
	writeCanonicalMap(&b, params)
	return []byte(b.String())
}

func writeCanonicalMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, k)
		b.WriteByte(':')
		writeCanonicalValue(b, m[k])
	}
	b.WriteByte('}')
}

func writeCanonicalValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		writeCanonicalString(b, val)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case map[string]any:
		writeCanonicalMap(b, val)
	case []any:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, elem)
		}
		b.WriteByte(']')
	default:
		writeCanonicalString(b, fmt.Sprintf("%v", val))
	}
}

func writeCanonicalString(b *strings.Builder, s string) {
	b.WriteString(strconv.Quote(norm.NFC.String(s)))
}
