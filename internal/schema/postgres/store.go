// Package postgres implements the schema vector store on Postgres with
// the pgvector extension. The embeddings table is owned by the external
// sync job; the pipeline only reads it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/queryloom/queryloom/internal/schema"
)

type StoreConfig struct {
	Table         string
	EmbeddingDims int
}

type Store struct {
	db    *sql.DB
	table string
	dims  int
}

func NewStore(db *sql.DB, cfg StoreConfig) *Store {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "schema_embeddings"
	}
	dims := cfg.EmbeddingDims
	if dims <= 0 {
		dims = 1536
	}
	return &Store{db: db, table: table, dims: dims}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping vector store: %w", err)
	}
	return nil
}

// SearchSimilar returns the k nearest schema entries by cosine distance,
// most similar first.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, k int) (schema.Context, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	query := fmt.Sprintf(`
SELECT object, kind, description, columns, 1 - (embedding <=> $1) AS similarity
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, quoteIdent(s.table))

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("search schema embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make(schema.Context, 0, k)
	for rows.Next() {
		var (
			entry       schema.Entry
			description sql.NullString
			columnsJSON []byte
		)
		if err := rows.Scan(&entry.Object, &entry.Kind, &description, &columnsJSON, &entry.Similarity); err != nil {
			return nil, fmt.Errorf("scan schema embedding row: %w", err)
		}
		entry.Description = description.String
		if len(columnsJSON) > 0 {
			if err := json.Unmarshal(columnsJSON, &entry.Columns); err != nil {
				return nil, fmt.Errorf("decode columns for %q: %w", entry.Object, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema embedding rows: %w", err)
	}
	return entries, nil
}

// Upsert writes one embedded schema entry. Used by the sync job only.
func (s *Store) Upsert(ctx context.Context, entry schema.Entry, embedding []float32) error {
	if strings.TrimSpace(entry.Object) == "" {
		return fmt.Errorf("entry object is required")
	}
	if len(embedding) == 0 {
		return fmt.Errorf("embedding is required")
	}

	columnsJSON, err := json.Marshal(entry.Columns)
	if err != nil {
		return fmt.Errorf("encode columns for %q: %w", entry.Object, err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (object, kind, description, columns, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (object) DO UPDATE
SET kind = EXCLUDED.kind,
    description = EXCLUDED.description,
    columns = EXCLUDED.columns,
    embedding = EXCLUDED.embedding,
    updated_at = now()`, quoteIdent(s.table))

	if _, err := s.db.ExecContext(ctx, query, entry.Object, entry.Kind, entry.Description, columnsJSON, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("upsert schema embedding %q: %w", entry.Object, err)
	}
	return nil
}

// EnsureSchema creates the pgvector extension, the embeddings table and
// its indexes when missing. Safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id bigserial PRIMARY KEY,
    object text NOT NULL,
    kind text NOT NULL,
    description text,
    columns jsonb,
    embedding vector(%d),
    updated_at timestamptz NOT NULL DEFAULT now()
)`, quoteIdent(s.table), s.dims),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (object)`,
			quoteIdent(s.table+"_object_idx"), quoteIdent(s.table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
			quoteIdent(s.table+"_embedding_idx"), quoteIdent(s.table)),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector store schema: %w", err)
		}
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
