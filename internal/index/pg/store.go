// Package pg implements the vector index on PostgreSQL with the pgvector
// extension. Similarity is cosine distance via the <=> operator.
package pg

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/duc-ai/duc/internal/index"
)

//go:embed schema.sql
var schemaSQL string

// Store is a PostgreSQL-backed vector index.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// EnsureSchema applies the embedded schema. Safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return &index.IndexError{Op: "migrate", Err: err}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Upsert writes all entries in one transaction so a concurrent Search sees
// the whole document or none of it. Existing ids are overwritten, which is
// what makes re-ingestion replace prior content cleanly.
func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &index.IndexError{Op: "upsert", Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.Filename == "" {
			return &index.IndexError{Op: "upsert", Err: fmt.Errorf("entry without filename")}
		}
		batch.Queue(
			`INSERT INTO chunks (id, filename, page, chunk_index, content, embedding, file_type, file_size, upload_id, uploaded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
			   page = EXCLUDED.page,
			   content = EXCLUDED.content,
			   embedding = EXCLUDED.embedding,
			   file_type = EXCLUDED.file_type,
			   file_size = EXCLUDED.file_size,
			   upload_id = EXCLUDED.upload_id,
			   uploaded_at = EXCLUDED.uploaded_at`,
			e.ID(), e.Filename, e.Page, e.ChunkIndex, e.Text,
			pgvector.NewVector(e.Vector), e.FileType, e.FileSize, e.UploadID, e.UploadedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(entries); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return &index.IndexError{Op: "upsert", Err: fmt.Errorf("failed to insert chunk %d: %w", i, err)}
		}
	}
	if err := br.Close(); err != nil {
		return &index.IndexError{Op: "upsert", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &index.IndexError{Op: "upsert", Err: fmt.Errorf("failed to commit: %w", err)}
	}
	return nil
}

// Search finds the k nearest entries by cosine distance, best first.
// created_at and chunk_index break distance ties so results stay stable.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filenames []string) ([]index.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `SELECT filename, page, chunk_index, content, file_type, file_size, upload_id, uploaded_at,
	                 1 - (embedding <=> $1) AS score
	          FROM chunks
	          WHERE embedding IS NOT NULL`
	args := []any{pgvector.NewVector(vector)}
	if len(filenames) > 0 {
		query += ` AND filename = ANY($2)`
		args = append(args, filenames)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1, created_at, chunk_index LIMIT %d`, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &index.IndexError{Op: "search", Err: err}
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var m index.Match
		if err := rows.Scan(
			&m.Entry.Filename, &m.Entry.Page, &m.Entry.ChunkIndex, &m.Entry.Text,
			&m.Entry.FileType, &m.Entry.FileSize, &m.Entry.UploadID, &m.Entry.UploadedAt,
			&m.Score,
		); err != nil {
			return nil, &index.IndexError{Op: "search", Err: fmt.Errorf("failed to scan match: %w", err)}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &index.IndexError{Op: "search", Err: err}
	}
	return matches, nil
}

// DeleteByFilename removes all chunks of a file and returns how many went.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE filename = $1`, filename)
	if err != nil {
		return 0, &index.IndexError{Op: "delete", Err: err}
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAll clears the whole index.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, &index.IndexError{Op: "delete", Err: err}
	}
	return int(tag.RowsAffected()), nil
}

// ListDocuments aggregates chunk counts per filename, most recent first.
func (s *Store) ListDocuments(ctx context.Context) ([]index.DocumentInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT filename, file_type, file_size, upload_id, uploaded_at, COUNT(*)
		 FROM chunks
		 GROUP BY filename, file_type, file_size, upload_id, uploaded_at
		 ORDER BY uploaded_at DESC, filename`,
	)
	if err != nil {
		return nil, &index.IndexError{Op: "list", Err: err}
	}
	defer rows.Close()

	var docs []index.DocumentInfo
	for rows.Next() {
		var d index.DocumentInfo
		if err := rows.Scan(&d.Filename, &d.FileType, &d.FileSize, &d.UploadID, &d.UploadedAt, &d.ChunkCount); err != nil {
			return nil, &index.IndexError{Op: "list", Err: fmt.Errorf("failed to scan document: %w", err)}
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &index.IndexError{Op: "list", Err: err}
	}
	return docs, nil
}

var _ index.Index = (*Store)(nil)
