// Package durable implements the durable vector store backed by
// PostgreSQL with the pgvector extension: the long-lived source of truth
// for posts and their embeddings, queried with the cosine distance
// operator when the cache tier misses or is unavailable.
package durable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
)

// Stats summarizes the durable store's content.
type Stats struct {
	TotalPosts     int64
	EmbeddedPosts  int64
	FrozenPosts    int64
}

// Store is the durable vector store contract: vector_search, get_by_id,
// get_by_ids, upsert, update_embedding, delete, stats, health.
type Store interface {
	VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error)
	GetByID(ctx context.Context, postID string) (model.Post, error)
	GetByIDs(ctx context.Context, postIDs []string) ([]model.Post, error)
	Upsert(ctx context.Context, post model.Post) error
	UpdateEmbedding(ctx context.Context, postID string, embedding []float32) error
	Delete(ctx context.Context, postID string) error
	Stats(ctx context.Context) (Stats, error)
	Health(ctx context.Context) error
}

type postRow struct {
	ID          string    `db:"id"`
	ExternalID  string    `db:"external_id"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	Author      string    `db:"author"`
	Language    string    `db:"language"`
	Frozen      bool      `db:"frozen"`
	PublishedAt time.Time `db:"published_at"`
	URL         string    `db:"url"`
	Embedding   *string   `db:"embedding"`
}

func (r postRow) toPost() (model.Post, error) {
	p := model.Post{
		ExternalID:  r.ExternalID,
		Title:       r.Title,
		Content:     r.Content,
		Author:      r.Author,
		Language:    r.Language,
		Frozen:      r.Frozen,
		PublishedAt: r.PublishedAt,
		URL:         r.URL,
	}
	if id, err := uuid.Parse(r.ID); err == nil {
		p.ID = id
	}
	if r.Embedding != nil {
		vec, err := parseVector(*r.Embedding)
		if err != nil {
			return model.Post{}, errorkind.Wrap(err, errorkind.DurableTransport, "scan_post")
		}
		p.Embedding = vec
	}
	return p, nil
}

// PGStore implements Store against a pgvector-enabled Postgres database.
type PGStore struct {
	db      *sqlx.DB
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a PGStore over an already-connected *sqlx.DB.
func New(db *sqlx.DB, logger observability.Logger, metrics observability.MetricsClient) *PGStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &PGStore{db: db, logger: logger, metrics: metrics}
}

// VectorSearch returns up to n candidates ordered by descending cosine
// similarity, excluding posts with no stored embedding. Score = 1 - cosine
// distance, per spec.
func (s *PGStore) VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	vectorStr := formatVector(queryVector)

	query := `
		SELECT external_id,
		       1 - (embedding <=> $1::vector) AS score
		FROM posts
		WHERE embedding IS NOT NULL AND frozen = false
		ORDER BY embedding <=> $1::vector ASC
		LIMIT $2
	`

	rows, err := s.db.QueryxContext(ctx, query, vectorStr, n)
	if err != nil {
		return nil, translateErr(err, "vector_search")
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]model.Candidate, 0, n)
	for rows.Next() {
		var postID string
		var score float32
		if err := rows.Scan(&postID, &score); err != nil {
			return nil, errorkind.Wrap(err, errorkind.DurableTransport, "vector_search")
		}
		candidates = append(candidates, model.Candidate{PostID: postID, Score: score, Provenance: model.ProvenanceDurable})
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err, "vector_search")
	}
	return candidates, nil
}

// GetByID fetches a single post by its external id.
func (s *PGStore) GetByID(ctx context.Context, postID string) (model.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, selectPostQuery+" WHERE external_id = $1", postID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, errorkind.New(errorkind.DurableTransport, "get_by_id", "post not found: "+postID)
	}
	if err != nil {
		return model.Post{}, translateErr(err, "get_by_id")
	}
	return row.toPost()
}

// GetByIDs batch-fetches posts by external id. Missing ids are simply
// absent from the result; callers detect and log gaps themselves.
func (s *PGStore) GetByIDs(ctx context.Context, postIDs []string) ([]model.Post, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(selectPostQuery+" WHERE external_id IN (?)", postIDs)
	if err != nil {
		return nil, errorkind.Wrap(err, errorkind.DurableTransport, "get_by_ids")
	}
	query = s.db.Rebind(query)

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translateErr(err, "get_by_ids")
	}

	posts := make([]model.Post, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPost()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// Upsert inserts or replaces a post by external id.
func (s *PGStore) Upsert(ctx context.Context, post model.Post) error {
	var embeddingStr interface{}
	if post.Embedding != nil {
		embeddingStr = formatVector(post.Embedding)
	}

	query := `
		INSERT INTO posts (external_id, title, content, author, language, frozen, published_at, url, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			author = EXCLUDED.author,
			language = EXCLUDED.language,
			frozen = EXCLUDED.frozen,
			published_at = EXCLUDED.published_at,
			url = EXCLUDED.url,
			embedding = EXCLUDED.embedding
	`
	_, err := s.db.ExecContext(ctx, query,
		post.ExternalID, post.Title, post.Content, post.Author, post.Language,
		post.Frozen, post.PublishedAt, post.URL, embeddingStr)
	if err != nil {
		return translateErr(err, "upsert")
	}
	return nil
}

// UpdateEmbedding replaces a post's stored embedding.
func (s *PGStore) UpdateEmbedding(ctx context.Context, postID string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET embedding = $2::vector WHERE external_id = $1`,
		postID, formatVector(embedding))
	if err != nil {
		return translateErr(err, "update_embedding")
	}
	return nil
}

// Delete removes a post.
func (s *PGStore) Delete(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE external_id = $1`, postID)
	if err != nil {
		return translateErr(err, "delete")
	}
	return nil
}

// Stats reports aggregate counts over the posts table.
func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowxContext(ctx, `
		SELECT count(*) AS total,
		       count(*) FILTER (WHERE embedding IS NOT NULL) AS embedded,
		       count(*) FILTER (WHERE frozen) AS frozen
		FROM posts
	`).Scan(&st.TotalPosts, &st.EmbeddedPosts, &st.FrozenPosts)
	if err != nil {
		return Stats{}, translateErr(err, "stats")
	}
	return st, nil
}

// Health pings the underlying connection pool.
func (s *PGStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return translateErr(err, "health")
	}
	return nil
}

const selectPostQuery = `
	SELECT id, external_id, title, content, author, language, frozen, published_at, url, embedding::text AS embedding
	FROM posts
`

// translateErr classifies a raw driver error into the closed error kind
// set, surfacing context deadlines and driver timeouts as Timeout rather
// than a generic DurableTransport failure.
func translateErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorkind.Wrap(err, errorkind.Timeout, op)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "57014" { // query_canceled
		return errorkind.Wrap(err, errorkind.Timeout, op)
	}
	return errorkind.Wrap(err, errorkind.DurableTransport, op)
}

func formatVector(vector []float32) string {
	elements := make([]string, len(vector))
	for i, v := range vector {
		elements[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(elements, ",") + "]"
}

func parseVector(vectorStr string) ([]float32, error) {
	trimmed := strings.Trim(vectorStr, "[]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%f", &v); err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
