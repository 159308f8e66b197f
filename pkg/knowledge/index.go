package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"siteforge/pkg/logx"
)

// Pattern is one advisory entry: a labeled snippet or convention with its
// embedding. Patterns are global, not tied to any project.
type Pattern struct {
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float32 `json:"-"`
}

// ScoredPattern pairs a pattern with its similarity to a query.
type ScoredPattern struct {
	Pattern
	Score float64 `json:"score"`
}

// Index is the persistent advisory pattern store. Writes replace by ID, so
// re-ingesting a pattern updates it in place rather than duplicating.
type Index struct {
	db       *sql.DB
	embedder Embedder
	logger   *logx.Logger
}

// NewIndex creates an Index over the shared database.
func NewIndex(db *sql.DB, embedder Embedder) *Index {
	return &Index{
		db:       db,
		embedder: embedder,
		logger:   logx.NewLogger("knowledge"),
	}
}

// Ingest embeds and stores a pattern, replacing any existing entry with the
// same ID. Label and content embed together so retrieval matches either.
func (idx *Index) Ingest(ctx context.Context, id, label, content string, tags []string) (*Pattern, error) {
	if id == "" {
		return nil, fmt.Errorf("pattern id cannot be empty")
	}
	if content == "" {
		return nil, fmt.Errorf("pattern content cannot be empty")
	}
	if label == "" {
		label = id
	}

	embedding, err := idx.embedder.Embed(ctx, label+"\n"+content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed pattern %s: %w", id, err)
	}

	pattern := &Pattern{
		ID:        id,
		Label:     label,
		Content:   content,
		Tags:      tags,
		Embedding: embedding,
		UpdatedAt: time.Now().UTC(),
	}

	_, err = idx.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO patterns (id, label, content, tags, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, pattern.ID, pattern.Label, pattern.Content, joinTags(pattern.Tags),
		encodeEmbedding(pattern.Embedding), pattern.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store pattern %s: %w", id, err)
	}

	idx.logger.Debug("ingested pattern %s (%d dims)", id, len(embedding))
	return pattern, nil
}

// Retrieve returns the topK patterns most similar to the query, highest
// score first. Ties break on pattern ID so results are deterministic. An
// empty index yields an empty slice, never an error. When tags are given,
// only patterns carrying at least one of them are considered.
func (idx *Index) Retrieve(ctx context.Context, query string, topK int, tags ...string) ([]ScoredPattern, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	patterns, err := idx.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	scored := make([]ScoredPattern, 0, len(patterns))
	for _, p := range patterns {
		if len(tags) > 0 && !hasAnyTag(p.Tags, tags) {
			continue
		}
		scored = append(scored, ScoredPattern{
			Pattern: p,
			Score:   cosine(queryVec, p.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// List returns all patterns ordered by ID.
func (idx *Index) List(ctx context.Context) ([]Pattern, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, label, content, tags, embedding, updated_at FROM patterns ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close in defer is safe

	var patterns []Pattern
	for rows.Next() {
		var p Pattern
		var tags sql.NullString
		var blob []byte
		if err := rows.Scan(&p.ID, &p.Label, &p.Content, &tags, &blob, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		if tags.Valid && tags.String != "" {
			p.Tags = strings.Split(tags.String, ",")
		}
		p.Embedding = decodeEmbedding(blob)
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pattern rows error: %w", err)
	}
	return patterns, nil
}

// Count returns the number of indexed patterns.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return n, nil
}

// Delete removes a pattern by ID. Unknown IDs are not an error.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM patterns WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pattern %s: %w", id, err)
	}
	return nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// encodeEmbedding packs a vector as little-endian float32 bytes for BLOB
// storage.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
