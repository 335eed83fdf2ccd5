package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/core/mocks"
	"github.com/openshelf-dev/openshelf/internal/models"
)

const testDocID = "4f5b0cda-9f4d-4a9a-b9a1-0a1f6a1d2e3c"

type pipelineFixture struct {
	db       *mocks.MemoryDbClient
	obj      *mocks.MemoryObjectClient
	embedder *mocks.StubEmbedder
	opener   *mocks.StubOpener
	pipeline *IngestionPipeline
}

func newFixture(t *testing.T, cfg *IngestConfig, pageTexts []string) *pipelineFixture {
	t.Helper()

	db := mocks.NewMemoryDbClient()
	obj := mocks.NewMemoryObjectClient()
	embedder := mocks.NewStubEmbedder(8)
	opener := &mocks.StubOpener{Reader: &mocks.StubReader{
		PageTexts: pageTexts,
		Width:     612,
		Height:    792,
	}}

	doc := &models.Document{
		ID:          testDocID,
		Title:       "Fixture",
		FileName:    "fixture.pdf",
		StoragePath: testDocID + "/source/fixture.pdf",
		ContentType: "application/pdf",
		Status:      "uploaded",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.CreateDocument(context.Background(), doc))
	_, err := obj.Upload(context.Background(), doc.StoragePath, []byte("%PDF-1.7 fixture"), "application/pdf")
	require.NoError(t, err)
	obj.UploadCount = 0 // count only pipeline uploads

	pipeline, err := NewIngestionPipeline(db, obj, embedder, opener, cfg, nil)
	require.NoError(t, err)

	return &pipelineFixture{db: db, obj: obj, embedder: embedder, opener: opener, pipeline: pipeline}
}

func smallConfig() *IngestConfig {
	return &IngestConfig{
		MaxTokens:     10,
		OverlapTokens: 2,
		BatchSize:     4,
		MaxPages:      100,
		Resolutions:   core.DefaultResolutions,
		RenderQuality: 85,
	}
}

func pageOfWords(page, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("pg%dtok%03d", page, i)
	}
	return strings.Join(out, " ")
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 24), pageOfWords(2, 7)})

	result, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.TotalPages)
	assert.Greater(t, result.TotalChunks, 0)

	// Two resolutions uploaded per page, at deterministic keys.
	assert.Equal(t, 4, f.obj.UploadCount)
	for page := 1; page <= 2; page++ {
		for _, res := range []string{"thumbnail", "medium"} {
			key := fmt.Sprintf("%s/pages/%s/%d.jpg", testDocID, res, page)
			assert.Contains(t, f.obj.Objects, key)
		}
	}

	pages, err := f.db.ListPageImages(context.Background(), testDocID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 612, pages[0].Width)
	assert.Equal(t, 792, pages[0].Height)

	chunks, err := f.db.GetChunksByDocument(context.Background(), testDocID)
	require.NoError(t, err)
	require.Len(t, chunks, result.TotalChunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.NotNil(t, ch.Embedding, "chunk %d should be embedded", i)
		assert.LessOrEqual(t, ch.PageStart, ch.PageEnd)
	}

	doc, err := f.db.GetDocumentByID(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, "ready", doc.Status)

	assert.True(t, f.opener.Reader.Closed, "reader handle must be released")
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 24)})

	first, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)
	uploadsAfterFirst := f.obj.UploadCount

	second, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, first.TotalPages, second.TotalPages)
	assert.Equal(t, first.TotalChunks, second.TotalChunks)
	assert.NotEmpty(t, second.Message)
	assert.Equal(t, uploadsAfterFirst, f.obj.UploadCount, "second run must not touch storage")
}

func TestRunForceRegenerates(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 24)})

	_, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)

	// Plant a stale extra chunk to prove regeneration replaces, not merges.
	f.db.Chunks[testDocID] = append(f.db.Chunks[testDocID], models.DocumentChunk{
		ID: "stale", DocumentID: testDocID, ChunkIndex: 99, Text: "stale", PageStart: 1, PageEnd: 1,
	})

	result, err := f.pipeline.Run(context.Background(), testDocID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)

	chunks, err := f.db.GetChunksByDocument(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Len(t, chunks, result.TotalChunks, "row count must equal the new generation only")
	for _, ch := range chunks {
		assert.NotEqual(t, "stale", ch.ID)
	}
}

func TestRunUnknownDocument(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 5)})

	_, err := f.pipeline.Run(context.Background(), "c1a7e6de-0000-4000-8000-000000000000", false)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestRunUnsupportedFormat(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 5)})
	f.db.Documents[testDocID].ContentType = "application/epub+zip"

	_, err := f.pipeline.Run(context.Background(), testDocID, false)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	pages, chunks, _ := f.db.ArtifactCounts(context.Background(), testDocID)
	assert.Zero(t, pages)
	assert.Zero(t, chunks)
}

func TestRunInvalidDocument(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 5)})
	f.opener.OpenErr = fmt.Errorf("%w: broken xref table", core.ErrInvalidDocument)

	_, err := f.pipeline.Run(context.Background(), testDocID, false)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
	assert.Zero(t, f.obj.UploadCount)
}

func TestRunTooManyPages(t *testing.T) {
	texts := make([]string, 150)
	for i := range texts {
		texts[i] = pageOfWords(i+1, 3)
	}
	f := newFixture(t, smallConfig(), texts)

	_, err := f.pipeline.Run(context.Background(), testDocID, false)

	var tooMany *core.TooManyPagesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 150, tooMany.Pages)
	assert.Equal(t, 100, tooMany.Limit)

	// No images uploaded, no rows written, handle released.
	assert.Zero(t, f.obj.UploadCount)
	pages, _, _ := f.db.ArtifactCounts(context.Background(), testDocID)
	assert.Zero(t, pages)
	assert.True(t, f.opener.Reader.Closed)
}

func TestRunConcurrentRunRejected(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 5)})
	f.db.HoldLock(testDocID)

	_, err := f.pipeline.Run(context.Background(), testDocID, false)
	assert.ErrorIs(t, err, core.ErrIngestInProgress)
}

func TestRunStorageFailureReturnsFailedResult(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 5)})
	f.obj.DownloadErr = errors.New("s3 get failed: connection reset")

	result, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err, "runtime failures surface in the result, not as errors")
	require.NotNil(t, result)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, "connection reset")

	doc, _ := f.db.GetDocumentByID(context.Background(), testDocID)
	assert.Equal(t, string(StatusFailed), doc.Status)
}

func TestRunPersistFailureRollsBack(t *testing.T) {
	f := newFixture(t, smallConfig(), []string{pageOfWords(1, 24)})
	f.db.SaveErr = errors.New("deadlock detected")

	result, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, "deadlock detected")

	pages, chunks, _ := f.db.ArtifactCounts(context.Background(), testDocID)
	assert.Zero(t, pages, "no rows may survive a failed transaction")
	assert.Zero(t, chunks)
}

func TestRunEmbeddingFailureKeepsChunk(t *testing.T) {
	// One page of 100 tokens with a 10-token window and no overlap yields
	// exactly 10 chunks; chunk 3 is made to fail embedding.
	cfg := smallConfig()
	cfg.OverlapTokens = 0
	cfg.BatchSize = 5
	f := newFixture(t, cfg, []string{pageOfWords(1, 100)})

	chunker, err := NewChunker(cfg.MaxTokens, cfg.OverlapTokens)
	require.NoError(t, err)
	preview := chunker.Chunk([]PageText{{Page: 1, Text: pageOfWords(1, 100)}})
	require.Len(t, preview, 10)
	f.embedder.FailTexts[preview[3].Text] = true

	result, err := f.pipeline.Run(context.Background(), testDocID, false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status, "a failed embedding must not fail the run")
	assert.Equal(t, 10, result.TotalChunks)

	chunks, err := f.db.GetChunksByDocument(context.Background(), testDocID)
	require.NoError(t, err)
	require.Len(t, chunks, 10)
	for _, ch := range chunks {
		if ch.ChunkIndex == 3 {
			assert.Nil(t, ch.Embedding, "chunk 3 must be persisted without a vector")
		} else {
			assert.NotNil(t, ch.Embedding, "chunk %d must be embedded", ch.ChunkIndex)
		}
	}
}

func TestPageImageKey(t *testing.T) {
	assert.Equal(t, "doc-1/pages/thumbnail/3.jpg", pageImageKey("doc-1", "thumbnail", 3))
}
