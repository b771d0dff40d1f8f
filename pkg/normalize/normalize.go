// Package normalize implements the query normalizer and fingerprinter.
// Unlike a general-purpose search normalizer, this one must be lexically
// lossless: it exists only to make cache keys invariant to case and
// whitespace, never to change word meaning (no stop-word removal, no
// stemming, no synonym folding — any of those would make two distinct
// queries collide on the same topK cache entry).
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// Normalize lowercases the input, trims leading/trailing whitespace, and
// collapses interior Unicode whitespace runs to single ASCII spaces.
func Normalize(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	fields := strings.FieldsFunc(lowered, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// Fingerprint hashes the normalized query with a fixed, documented
// non-cryptographic 64-bit hash. Queries that differ only by outer/inner
// whitespace or letter case normalize to the same string and therefore
// produce the same fingerprint.
func Fingerprint(s string) uint64 {
	return xxhash.Sum64String(Normalize(s))
}

// FingerprintWith computes the parameterized topK cache key: normalized
// query, k, min_score formatted to 3 decimal digits, and filter key/value
// pairs in key-sorted order, joined with "|" before hashing.
func FingerprintWith(query string, k int, minScore *float32, filters map[string]string) uint64 {
	var b strings.Builder
	b.WriteString(Normalize(query))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k))
	b.WriteByte('|')
	if minScore != nil {
		b.WriteString(fmt.Sprintf("%.3f", *minScore))
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte('|')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(filters[key])
	}

	return xxhash.Sum64String(b.String())
}

// Validate rejects queries that are empty after trimming, exceed 1000
// bytes, contain no alphanumeric character, or contain an ASCII control
// character other than tab, CR, or LF.
func Validate(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return errorkind.New(errorkind.InvalidRequest, "validate", "query is empty")
	}
	if len(s) > 1000 {
		return errorkind.New(errorkind.InvalidRequest, "validate", "query exceeds 1000 bytes")
	}

	hasAlnum := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasAlnum = true
		}
		if (r < 0x20 && r != '\t' && r != '\r' && r != '\n') || r == 0x7f {
			return errorkind.New(errorkind.InvalidRequest, "validate", "query contains a forbidden control character")
		}
	}
	if !hasAlnum {
		return errorkind.New(errorkind.InvalidRequest, "validate", "query has no alphanumeric character")
	}
	return nil
}
