// Package model defines the shared data types that flow through the
// retrieval pipeline: posts, candidates, requests, and responses. It also
// carries the GDPR snippet truncation rule and response validation, since
// both operate purely on these types and have no dependency on any backend.
package model

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Provenance identifies which backend produced a Candidate.
type Provenance string

const (
	ProvenanceCache   Provenance = "cache"
	ProvenanceDurable Provenance = "durable"
)

// Candidate is a (post-id, score, provenance) triple produced by a
// retrieval backend prior to hydration. Score is higher-is-better; for a
// cosine distance delta returned by the durable store, score = 1 - delta.
type Candidate struct {
	PostID     string
	Score      float32
	Provenance Provenance
}

// Post is a unit of content with a stable external identifier, a body,
// metadata, and (optionally) a precomputed embedding. Identity key is
// ExternalID; Internal UUID is plumbing for storage joins and tracing, not
// exposed to callers.
type Post struct {
	ID         uuid.UUID `db:"id"`
	ExternalID string    `db:"external_id"`
	Title      string    `db:"title"`
	Content    string    `db:"content"`
	Author     string    `db:"author"`
	Language   string    `db:"language"`
	Frozen     bool      `db:"frozen"`
	PublishedAt time.Time `db:"published_at"`
	URL        string    `db:"url"`
	Embedding  []float32 `db:"embedding"`
}

// Metadata is the only post-derived data ever returned in a response
// besides title and snippet.
type Metadata struct {
	Author   string
	URL      string
	Date     time.Time
	Language string
	Frozen   bool
}

// PublicMetadata extracts the response-safe subset of a Post.
func PublicMetadata(p Post) Metadata {
	return Metadata{
		Author:   p.Author,
		URL:      p.URL,
		Date:     p.PublishedAt,
		Language: p.Language,
		Frozen:   p.Frozen,
	}
}

// Filters narrow a search to posts matching the given language and/or
// frozen state. A nil pointer field means "no constraint".
type Filters struct {
	Language *string
	Frozen   *bool
}

// Match reports whether a post satisfies the filters.
func (f Filters) Match(p Post) bool {
	if f.Language != nil && p.Language != *f.Language {
		return false
	}
	if f.Frozen != nil && p.Frozen != *f.Frozen {
		return false
	}
	return true
}

// Request is the inbound search request.
type Request struct {
	Query    string
	K        uint32
	MinScore *float32
	Rerank   bool
	Filters  Filters
}

// Result is one hydrated, response-ready entry: a candidate paired with
// its post's title, a GDPR-bounded snippet, and public metadata.
type Result struct {
	PostID   string
	Title    string
	Snippet  string
	Score    float32
	Meta     Metadata
}

// Response is the ordered list of results returned to the caller.
type Response struct {
	Results []Result
}

// CachedResult is the shape persisted in the topK cache tier: a
// response-ready Result plus the time it was written, used to honor the
// tier's TTL-based lifecycle.
type CachedResult struct {
	Result     Result
	InsertedAt time.Time
}

// SnippetLimit is the hard GDPR bound on snippet length in bytes.
const SnippetLimit = 300

// Truncate implements the snippet GDPR rule: given content C and limit L,
// if len(C) <= L return C unchanged; otherwise take the longest prefix of
// C[:L-3] that ends at a whitespace boundary (falling back to C[:L-3] if no
// whitespace is found), trim trailing whitespace, and append "...". The
// result never exceeds L bytes.
func Truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit - 3
	if cut < 0 {
		cut = 0
	}
	// Back off to a rune boundary so the no-whitespace fallback below
	// never splits a multi-byte UTF-8 sequence.
	for cut > 0 && cut < len(content) && !utf8.RuneStart(content[cut]) {
		cut--
	}
	prefix := content[:cut]
	boundary := -1
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] == ' ' || prefix[i] == '\t' || prefix[i] == '\n' || prefix[i] == '\r' {
			boundary = i
			break
		}
	}
	if boundary >= 0 {
		prefix = prefix[:boundary]
	}
	for len(prefix) > 0 {
		last := prefix[len(prefix)-1]
		if last == ' ' || last == '\t' || last == '\n' || last == '\r' {
			prefix = prefix[:len(prefix)-1]
			continue
		}
		break
	}
	return prefix + "..."
}
