package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/models"
)

// Status of one ingestion run.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Result is what a caller gets back from Run: always a structured value for
// runtime failures, never a propagated panic or a raw storage error.
type Result struct {
	Status      Status `json:"status"`
	TotalPages  int    `json:"total_pages"`
	TotalChunks int    `json:"total_chunks"`
	Message     string `json:"message,omitempty"`
}

// Ingestor is the trigger contract exposed to the API layer.
type Ingestor interface {
	Run(ctx context.Context, documentID string, force bool) (*Result, error)
}

var _ Ingestor = (*IngestionPipeline)(nil)

// IngestionPipeline turns a stored document into its two coupled
// representations: tiered page images for browsing and embedded text chunks
// for retrieval. One synchronous run per document; pages are processed
// sequentially because they share a single open document handle.
type IngestionPipeline struct {
	db       core.DbClient
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	opener   core.DocumentOpener
	chunker  *Chunker
	cfg      *IngestConfig
	log      *zap.Logger
}

// NewIngestionPipeline wires the pipeline with explicit dependencies; no
// package-level provider state.
func NewIngestionPipeline(
	db core.DbClient,
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	opener core.DocumentOpener,
	cfg *IngestConfig,
	log *zap.Logger,
) (*IngestionPipeline, error) {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	chunker, err := NewChunker(cfg.MaxTokens, cfg.OverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("chunker config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestionPipeline{
		db: db, obj: obj, embedder: emb, opener: opener,
		chunker: chunker, cfg: cfg, log: log,
	}, nil
}

// pageImageKey builds the deterministic object key for one rendered page.
func pageImageKey(documentID, resolution string, page int) string {
	return fmt.Sprintf("%s/pages/%s/%d.jpg", documentID, resolution, page)
}

// Run executes the full pipeline for one document.
//
// Validation failures (unknown document, unsupported format, unparseable
// bytes, page ceiling, concurrent run) return typed errors and leave no
// partial state. Runtime failures after validation return a FAILED Result
// with the error message; the database transaction never commits partially,
// though already-uploaded page images are not deleted on failure.
func (p *IngestionPipeline) Run(ctx context.Context, documentID string, force bool) (*Result, error) {
	doc, err := p.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if doc == nil {
		return nil, core.ErrDocumentNotFound
	}

	if doc.ContentType != "application/pdf" {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, doc.ContentType)
	}

	release, ok, err := p.db.TryAcquireIngestLock(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return nil, core.ErrIngestInProgress
	}
	defer release()

	existingPages, existingChunks, err := p.db.ArtifactCounts(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("count artifacts: %w", err)
	}
	if existingPages > 0 && !force {
		return &Result{
			Status:      StatusCompleted,
			TotalPages:  existingPages,
			TotalChunks: existingChunks,
			Message:     "document already processed; use force to regenerate",
		}, nil
	}
	if force && (existingPages > 0 || existingChunks > 0) {
		delPages, delChunks, err := p.db.DeleteDocumentArtifacts(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("delete prior artifacts: %w", err)
		}
		p.log.Info("deleted prior artifacts for regeneration",
			zap.String("document_id", documentID),
			zap.Int("pages", delPages),
			zap.Int("chunks", delChunks))
	}

	// Typed validation errors propagate from process untouched; everything
	// else became a FAILED result inside it.
	return p.process(ctx, doc)
}

// process runs the download → render → chunk → embed → persist sequence.
// The reader handle is released on every path via defer.
func (p *IngestionPipeline) process(ctx context.Context, doc *models.Document) (*Result, error) {
	started := time.Now()

	data, err := p.obj.Download(ctx, doc.StoragePath)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("download source: %w", err)), nil
	}

	reader, err := p.opener.Open(data)
	if err != nil {
		if errors.Is(err, core.ErrInvalidDocument) {
			return nil, err
		}
		return p.fail(ctx, doc.ID, fmt.Errorf("open document: %w", err)), nil
	}
	defer reader.Close()

	pageCount := reader.PageCount()
	if pageCount > p.cfg.MaxPages {
		return nil, &core.TooManyPagesError{Pages: pageCount, Limit: p.cfg.MaxPages}
	}

	_ = p.db.UpdateDocumentStatus(ctx, doc.ID, string(StatusProcessing))

	pageRows, err := p.renderPages(ctx, doc.ID, reader, pageCount)
	if err != nil {
		return p.fail(ctx, doc.ID, err), nil
	}

	pages := make([]PageText, 0, pageCount)
	for n := 1; n <= pageCount; n++ {
		text, err := reader.ExtractText(n)
		if err != nil {
			return p.fail(ctx, doc.ID, fmt.Errorf("extract text from page %d: %w", n, err)), nil
		}
		pages = append(pages, PageText{Page: n, Text: text})
	}

	chunks := p.chunker.Chunk(pages)
	chunkRows := p.embedChunks(ctx, doc.ID, chunks)

	if err := p.db.SaveIngestion(ctx, doc.ID, pageCount, pageRows, chunkRows); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("persist ingestion: %w", err)), nil
	}

	p.log.Info("ingestion completed",
		zap.String("document_id", doc.ID),
		zap.Int("pages", pageCount),
		zap.Int("chunks", len(chunkRows)),
		zap.Duration("elapsed", time.Since(started)))

	return &Result{
		Status:      StatusCompleted,
		TotalPages:  pageCount,
		TotalChunks: len(chunkRows),
	}, nil
}

// renderPages walks the document sequentially, rendering every configured
// resolution per page and uploading the images. The per-page resolution
// uploads run concurrently; pages do not, since they share the handle.
func (p *IngestionPipeline) renderPages(ctx context.Context, documentID string, reader core.PageReader, pageCount int) ([]models.PageImage, error) {
	rows := make([]models.PageImage, 0, pageCount)

	for n := 1; n <= pageCount; n++ {
		width, height, err := reader.Dimensions(n)
		if err != nil {
			return nil, fmt.Errorf("page %d dimensions: %w", n, err)
		}

		images, err := reader.RenderAll(n)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n, err)
		}

		keys := make(map[string]string, len(images))
		g, gctx := errgroup.WithContext(ctx)
		for res, img := range images {
			key := pageImageKey(documentID, res, n)
			keys[res] = key
			img := img
			g.Go(func() error {
				if _, err := p.obj.Upload(gctx, key, img, "image/jpeg"); err != nil {
					return fmt.Errorf("upload %s: %w", key, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		rows = append(rows, models.PageImage{
			ID:            uuid.NewString(),
			DocumentID:    documentID,
			PageNumber:    n,
			Width:         width,
			Height:        height,
			ThumbnailPath: keys["thumbnail"],
			MediumPath:    keys["medium"],
			CreatedAt:     time.Now().UTC(),
		})
	}
	return rows, nil
}

// embedChunks attaches embeddings to the chunk rows. A failed batch falls
// back to embedding chunk by chunk; a chunk whose embedding still fails is
// kept with a nil embedding so the run completes and the text remains
// displayable.
func (p *IngestionPipeline) embedChunks(ctx context.Context, documentID string, chunks []Chunk) []models.DocumentChunk {
	rows := make([]models.DocumentChunk, len(chunks))
	now := time.Now().UTC()
	for i, ch := range chunks {
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       ch.Text,
			TokenCount: ch.TokenCount,
			PageStart:  ch.PageStart,
			PageEnd:    ch.PageEnd,
			CreatedAt:  now,
		}
	}

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		texts := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			texts = append(texts, row.Text)
		}

		vecs, err := p.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vecs) == len(texts) {
			for i := range vecs {
				rows[start+i].Embedding = vecs[i]
			}
			continue
		}
		if err != nil {
			p.log.Warn("batch embedding failed, retrying per chunk",
				zap.String("document_id", documentID),
				zap.Int("batch_start", start),
				zap.Error(err))
		}

		for i := start; i < end; i++ {
			vec, err := p.embedder.EmbedText(ctx, rows[i].Text)
			if err != nil {
				p.log.Warn("chunk embedding failed, persisting without vector",
					zap.String("document_id", documentID),
					zap.Int("chunk_index", i),
					zap.Error(err))
				continue
			}
			rows[i].Embedding = vec
		}
	}
	return rows
}

// fail folds a runtime error into a FAILED result and marks the document.
func (p *IngestionPipeline) fail(ctx context.Context, documentID string, err error) *Result {
	p.log.Error("ingestion failed",
		zap.String("document_id", documentID),
		zap.Error(err))
	_ = p.db.UpdateDocumentStatus(ctx, documentID, string(StatusFailed))
	return &Result{Status: StatusFailed, Message: err.Error()}
}
