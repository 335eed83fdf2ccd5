package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/openshelf-dev/openshelf/internal/config"
	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, title, file_name, storage_path, content_type, status, page_count, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), COALESCE($9, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.Title, doc.FileName, doc.StoragePath, doc.ContentType, doc.Status, doc.PageCount, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, title, file_name, storage_path, content_type, status, page_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.Title, &d.FileName, &d.StoragePath, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, title, file_name, storage_path, content_type, status, page_count, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.Title, &d.FileName, &d.StoragePath, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Ingestion artifacts

func (c *DatabaseClient) ArtifactCounts(ctx context.Context, documentID string) (int, int, error) {
	var pages, chunks int
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM page_images WHERE document_id = $1),
			(SELECT count(*) FROM document_chunks WHERE document_id = $1)
	`, documentID).Scan(&pages, &chunks)
	if err != nil {
		return 0, 0, err
	}
	return pages, chunks, nil
}

func (c *DatabaseClient) DeleteDocumentArtifacts(ctx context.Context, documentID string) (int, int, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, err
	}

	resPages, err := tx.ExecContext(ctx, `DELETE FROM page_images WHERE document_id = $1`, documentID)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	resChunks, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	pages, _ := resPages.RowsAffected()
	chunks, _ := resChunks.RowsAffected()
	return int(pages), int(chunks), nil
}

// SaveIngestion writes one generation run atomically: page image rows,
// chunk rows, and the document's final page count and status.
func (c *DatabaseClient) SaveIngestion(ctx context.Context, documentID string, pageCount int, pages []models.PageImage, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const qPage = `
		INSERT INTO page_images
			(id, document_id, page_number, width, height, thumbnail_path, medium_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`
	pageStmt, err := tx.PrepareContext(ctx, qPage)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer pageStmt.Close()

	for i := range pages {
		p := &pages[i]
		if _, err := pageStmt.ExecContext(ctx,
			p.ID, p.DocumentID, p.PageNumber, p.Width, p.Height, p.ThumbnailPath, p.MediumPath, p.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert page image %d: %w", p.PageNumber, err)
		}
	}

	const qChunk = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, text, token_count, page_start, page_end, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	chunkStmt, err := tx.PrepareContext(ctx, qChunk)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer chunkStmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		// nil embedding stays NULL so retrieval can filter it out.
		var emb any
		if ch.Embedding != nil {
			emb = pgvector.NewVector(ch.Embedding)
		}
		if _, err := chunkStmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Text, ch.TokenCount, ch.PageStart, ch.PageEnd, emb, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET page_count = $2, status = 'ready', updated_at = now()
		WHERE id = $1
	`, documentID, pageCount); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update document: %w", err)
	}

	return tx.Commit()
}

func (c *DatabaseClient) ListPageImages(ctx context.Context, documentID string) ([]models.PageImage, error) {
	const q = `
		SELECT id, document_id, page_number, width, height, thumbnail_path, medium_path, created_at
		FROM page_images
		WHERE document_id = $1
		ORDER BY page_number ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PageImage
	for rows.Next() {
		var p models.PageImage
		if err := rows.Scan(
			&p.ID, &p.DocumentID, &p.PageNumber, &p.Width, &p.Height, &p.ThumbnailPath, &p.MediumPath, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Chunks

const chunkColumns = `id, document_id, chunk_index, text, token_count, page_start, page_end, embedding::text, created_at`

func scanChunk(scanner interface{ Scan(...any) error }) (models.DocumentChunk, error) {
	var (
		ch  models.DocumentChunk
		emb sql.NullString
	)
	if err := scanner.Scan(
		&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &ch.TokenCount, &ch.PageStart, &ch.PageEnd, &emb, &ch.CreatedAt,
	); err != nil {
		return ch, err
	}
	if emb.Valid {
		var vec pgvector.Vector
		if err := vec.Parse(emb.String); err != nil {
			return ch, fmt.Errorf("parse embedding: %w", err)
		}
		ch.Embedding = vec.Slice()
	}
	return ch, nil
}

func (c *DatabaseClient) GetChunk(ctx context.Context, documentID string, chunkIndex int) (*models.DocumentChunk, error) {
	q := `
		SELECT ` + chunkColumns + `
		FROM document_chunks
		WHERE document_id = $1 AND chunk_index = $2
	`
	ch, err := scanChunk(c.db.QueryRowContext(ctx, q, documentID, chunkIndex))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	q := `
		SELECT ` + chunkColumns + `
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchDocumentChunks finds the top-k chunks within a document by cosine
// distance to the query embedding. Chunks without an embedding never match;
// equal distances fall back to chunk order.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	q := `
		SELECT ` + chunkColumns + `
		FROM document_chunks
		WHERE document_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2 ASC, chunk_index ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// TryAcquireIngestLock takes a Postgres advisory lock keyed on the document
// id. Advisory locks are session-scoped, so the lock pins one connection
// from the pool and the release closure returns it.
func (c *DatabaseClient) TryAcquireIngestLock(ctx context.Context, documentID string) (func(), bool, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}

	var ok bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, documentID,
	).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		// Unlock on the same session, then return the connection.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, documentID)
		_ = conn.Close()
	}
	return release, true, nil
}
