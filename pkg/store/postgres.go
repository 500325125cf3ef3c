package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/xhad/siphon/internal/models"
)

// StoreConfig holds database settings. EmbedDim > 0 provisions a
// pgvector column on chunks; zero leaves the schema vector-free.
type StoreConfig struct {
	ConnString string
	EmbedDim   int
}

// Store persists extraction requests, their results, and the ordered
// chunks each result is split into.
type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config StoreConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %v", err)
	}
	if config.EmbedDim > 0 {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extraction_requests (
			id TEXT PRIMARY KEY,
			user_session_id TEXT NOT NULL,
			url TEXT NOT NULL,
			special_instructions TEXT NOT NULL DEFAULT '',
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create extraction_requests table: %v", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extraction_results (
			id TEXT PRIMARY KEY,
			extraction_request_id TEXT NOT NULL REFERENCES extraction_requests(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL,
			source_url TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create extraction_results table: %v", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS extraction_results_request_idx
		ON extraction_results (extraction_request_id)`)
	if err != nil {
		return fmt.Errorf("failed to create results index: %v", err)
	}

	// The unique pair keeps chunk ordering collision-free per result.
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			extraction_result_id TEXT NOT NULL REFERENCES extraction_results(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			order_number INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (extraction_result_id, order_number)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %v", err)
	}

	if s.config.EmbedDim > 0 {
		if err := s.initializeVectors(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) initializeVectors(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	alter := fmt.Sprintf(`
		ALTER TABLE chunks
		ADD COLUMN IF NOT EXISTS embedding vector(%d)`, s.config.EmbedDim)
	if _, err := s.pool.Exec(ctx, alter); err != nil {
		return fmt.Errorf("failed to add embedding column: %v", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx
		ON chunks
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`)
	if err != nil {
		return fmt.Errorf("failed to create embedding index: %v", err)
	}

	return nil
}

// CreateRequest inserts a new extraction request. Re-inserting an
// existing id is a no-op so publishers can retry safely.
func (s *Store) CreateRequest(ctx context.Context, req *models.ExtractionRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO extraction_requests (id, user_session_id, url, special_instructions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		req.ID, req.UserSessionID, req.URL, sanitizeUTF8(req.SpecialInstructions))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", models.ErrPersistence, err)
	}
	return nil
}

// GetRequest loads the authoritative row for a request id.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.ExtractionRequest, error) {
	var req models.ExtractionRequest
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_session_id, url, special_instructions, is_completed, created_at, updated_at
		FROM extraction_requests
		WHERE id = $1`, id).Scan(
		&req.ID,
		&req.UserSessionID,
		&req.URL,
		&req.SpecialInstructions,
		&req.IsCompleted,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: extraction request %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get request: %v", models.ErrPersistence, err)
	}
	return &req, nil
}

// MarkCompleted flips the completion flag on a request.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE extraction_requests
		SET is_completed = TRUE, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: mark completed: %v", models.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: extraction request %s", models.ErrNotFound, id)
	}
	return nil
}

// ListIncomplete returns requests that never finished, oldest first.
func (s *Store) ListIncomplete(ctx context.Context, limit int) ([]models.ExtractionRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_session_id, url, special_instructions, is_completed, created_at, updated_at
		FROM extraction_requests
		WHERE is_completed = FALSE
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list incomplete: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var reqs []models.ExtractionRequest
	for rows.Next() {
		var req models.ExtractionRequest
		err := rows.Scan(
			&req.ID,
			&req.UserSessionID,
			&req.URL,
			&req.SpecialInstructions,
			&req.IsCompleted,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan request: %v", models.ErrPersistence, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// SaveResult upserts one extraction result and replaces its chunk set
// in a single transaction, so reprocessing a request never leaves
// chunks from an earlier run behind.
func (s *Store) SaveResult(ctx context.Context, result *models.ExtractionResult, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO extraction_results (id, extraction_request_id, title, content, content_type, source_url, author, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			content_type = EXCLUDED.content_type,
			source_url = EXCLUDED.source_url,
			author = EXCLUDED.author,
			language = EXCLUDED.language,
			updated_at = now()`,
		result.ID,
		result.ExtractionRequestID,
		sanitizeUTF8(result.Title),
		sanitizeUTF8(result.Content),
		result.ContentType,
		result.SourceURL,
		sanitizeUTF8(result.Author),
		result.Language,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert result: %v", models.ErrPersistence, err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM chunks WHERE extraction_result_id = $1`, result.ID)
	if err != nil {
		return fmt.Errorf("%w: clear chunks: %v", models.ErrPersistence, err)
	}

	for _, chunk := range chunks {
		if s.config.EmbedDim > 0 {
			var vec any
			if len(chunk.Embedding) > 0 {
				vec = pgvector.NewVector(chunk.Embedding)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO chunks (id, extraction_result_id, content, order_number, embedding)
				VALUES ($1, $2, $3, $4, $5)`,
				chunk.ID, chunk.ExtractionResultID, sanitizeUTF8(chunk.Content), chunk.OrderNumber, vec)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO chunks (id, extraction_result_id, content, order_number)
				VALUES ($1, $2, $3, $4)`,
				chunk.ID, chunk.ExtractionResultID, sanitizeUTF8(chunk.Content), chunk.OrderNumber)
		}
		if err != nil {
			return fmt.Errorf("%w: insert chunk %d: %v", models.ErrPersistence, chunk.OrderNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", models.ErrPersistence, err)
	}

	return nil
}

// ResultsForRequest returns all results saved for a request.
func (s *Store) ResultsForRequest(ctx context.Context, requestID string) ([]models.ExtractionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, extraction_request_id, title, content, content_type, source_url, author, language, created_at, updated_at
		FROM extraction_results
		WHERE extraction_request_id = $1
		ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: list results: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var results []models.ExtractionResult
	for rows.Next() {
		var r models.ExtractionResult
		err := rows.Scan(
			&r.ID,
			&r.ExtractionRequestID,
			&r.Title,
			&r.Content,
			&r.ContentType,
			&r.SourceURL,
			&r.Author,
			&r.Language,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", models.ErrPersistence, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ChunksForResult returns a result's chunks in ascending order, so
// concatenating their content reproduces the original text.
func (s *Store) ChunksForResult(ctx context.Context, resultID string) ([]models.Chunk, error) {
	query := `
		SELECT id, extraction_result_id, content, order_number, created_at, updated_at
		FROM chunks
		WHERE extraction_result_id = $1
		ORDER BY order_number`
	if s.config.EmbedDim > 0 {
		query = `
			SELECT id, extraction_result_id, content, order_number, embedding, created_at, updated_at
			FROM chunks
			WHERE extraction_result_id = $1
			ORDER BY order_number`
	}

	rows, err := s.pool.Query(ctx, query, resultID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if s.config.EmbedDim > 0 {
			var vec *pgvector.Vector
			err = rows.Scan(&c.ID, &c.ExtractionResultID, &c.Content, &c.OrderNumber, &vec, &c.CreatedAt, &c.UpdatedAt)
			if vec != nil {
				c.Embedding = vec.Slice()
			}
		} else {
			err = rows.Scan(&c.ID, &c.ExtractionResultID, &c.Content, &c.OrderNumber, &c.CreatedAt, &c.UpdatedAt)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", models.ErrPersistence, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
