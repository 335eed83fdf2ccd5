package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf-dev/openshelf/internal/core"
	"github.com/openshelf-dev/openshelf/internal/core/mocks"
	"github.com/openshelf-dev/openshelf/internal/models"
)

const docID = "7f6a2a6e-28c9-4b1e-9a61-aa1d3a1a9d00"

func seedRetrievalFixture(t *testing.T) (*mocks.MemoryDbClient, *mocks.StubEmbedder) {
	t.Helper()

	db := mocks.NewMemoryDbClient()
	require.NoError(t, db.CreateDocument(context.Background(), &models.Document{
		ID: docID, FileName: "book.pdf", ContentType: "application/pdf", Status: "ready",
	}))

	// Orthogonal-ish embeddings with a known distance ordering from the
	// pinned query vector (1,0,0): chunk 2 closest, then 0, then 1.
	// Chunk 3 has no embedding and must never be retrieved.
	db.Chunks[docID] = []models.DocumentChunk{
		{DocumentID: docID, ChunkIndex: 0, Text: "somewhat related", TokenCount: 2, PageStart: 1, PageEnd: 2, Embedding: []float32{1, 1, 0}},
		{DocumentID: docID, ChunkIndex: 1, Text: "unrelated", TokenCount: 1, PageStart: 3, PageEnd: 3, Embedding: []float32{0, 1, 1}},
		{DocumentID: docID, ChunkIndex: 2, Text: "on topic", TokenCount: 2, PageStart: 5, PageEnd: 7, Embedding: []float32{1, 0.1, 0}},
		{DocumentID: docID, ChunkIndex: 3, Text: "never embedded", TokenCount: 2, PageStart: 8, PageEnd: 8, Embedding: nil},
	}

	embedder := mocks.NewStubEmbedder(3)
	embedder.Vectors["what is this about"] = []float32{1, 0, 0}
	return db, embedder
}

func TestQueryRanksByCosineDistance(t *testing.T) {
	db, embedder := seedRetrievalFixture(t)
	svc := NewRetrievalService(db, embedder)

	results, err := svc.Query(context.Background(), docID, "what is this about", 10)
	require.NoError(t, err)
	require.Len(t, results, 3, "the chunk without an embedding is excluded")

	assert.Equal(t, "on topic", results[0].Text)
	assert.Equal(t, "somewhat related", results[1].Text)
	assert.Equal(t, "unrelated", results[2].Text)

	assert.Equal(t, "Pages 5-7", results[0].PageCitation)
	assert.Equal(t, "Pages 1-2", results[1].PageCitation)
	assert.Equal(t, "Page 3", results[2].PageCitation)
}

func TestQueryHonorsK(t *testing.T) {
	db, embedder := seedRetrievalFixture(t)
	svc := NewRetrievalService(db, embedder)

	results, err := svc.Query(context.Background(), docID, "what is this about", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "on topic", results[0].Text)
}

func TestQueryUnknownDocument(t *testing.T) {
	db, embedder := seedRetrievalFixture(t)
	svc := NewRetrievalService(db, embedder)

	_, err := svc.Query(context.Background(), "b6a10000-0000-4000-8000-000000000000", "anything", 5)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestQueryEmbeddingFailure(t *testing.T) {
	db, embedder := seedRetrievalFixture(t)
	embedder.FailTexts["broken query"] = true
	svc := NewRetrievalService(db, embedder)

	_, err := svc.Query(context.Background(), docID, "broken query", 5)
	assert.Error(t, err)
}
