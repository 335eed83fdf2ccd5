package core

import (
	"context"
	"time"

	"github.com/openshelf-dev/openshelf/internal/models"
)

// DbClient defines all persistence operations the services and the
// ingestion pipeline need. It abstracts Postgres/pgvector so higher layers
// never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// ArtifactCounts reports how many page images and chunks exist for a
	// document; the pipeline's idempotency check.
	ArtifactCounts(ctx context.Context, documentID string) (pages int, chunks int, err error)

	// DeleteDocumentArtifacts removes all page images and chunks for a
	// document in one transaction and reports how many rows went away.
	DeleteDocumentArtifacts(ctx context.Context, documentID string) (pages int, chunks int, err error)

	// SaveIngestion persists a full generation run — page image rows, chunk
	// rows, the document's page_count and its "ready" status — as a single
	// transaction. Either everything lands or nothing does.
	SaveIngestion(ctx context.Context, documentID string, pageCount int, pages []models.PageImage, chunks []models.DocumentChunk) error

	ListPageImages(ctx context.Context, documentID string) ([]models.PageImage, error)
	GetChunk(ctx context.Context, documentID string, chunkIndex int) (*models.DocumentChunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)

	// SearchDocumentChunks returns up to limit chunks with a non-null
	// embedding, ordered by ascending cosine distance to queryVec, ties
	// broken by ascending chunk index.
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	// TryAcquireIngestLock takes a per-document advisory lock. ok=false
	// means another run holds it. release must be called when ok is true.
	TryAcquireIngestLock(ctx context.Context, documentID string) (release func(), ok bool, err error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	// Upload stores data under key and returns the key.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Download returns the object bytes, ErrBlobNotFound when absent.
	Download(ctx context.Context, key string) ([]byte, error)
	// SignedURL issues a presigned URL for the object, for download or upload.
	SignedURL(ctx context.Context, key string, ttl time.Duration, forDownload bool) (string, error)
	Delete(ctx context.Context, key string) error
}
