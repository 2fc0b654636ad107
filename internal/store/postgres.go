package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents as JSONB rows in the documents table
// (see migrations/000001_create_documents).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string, dst any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Document{Collection: collection, ID: id, Data: raw}.Decode(dst)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data any, opts SetOptions) error {
	f, err := toFields(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT (collection, id) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = NOW()`
	if opts.Merge {
		query = `INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT (collection, id) DO UPDATE
		 SET data = documents.data || EXCLUDED.data, updated_at = NOW()`
	}

	if _, err := s.pool.Exec(ctx, query, collection, id, string(raw)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	match := make(map[string]any, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	containment, err := json.Marshal(match)
	if err != nil {
		return nil, fmt.Errorf("marshal filters: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND data @> $2::jsonb
		 ORDER BY id`,
		collection, string(containment),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d := Document{Collection: collection}
		var raw []byte
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, err
		}
		d.Data = raw
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
