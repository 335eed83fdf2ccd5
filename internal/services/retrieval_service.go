package services

import (
	"context"
	"fmt"

	"github.com/openshelf-dev/openshelf/internal/core"
)

// RetrievedChunk is the retrieval contract's output unit: chunk text plus
// the citation the answer layer shows to the reader.
type RetrievedChunk struct {
	Text         string `json:"text"`
	PageCitation string `json:"page_citation"`
	TokenCount   int    `json:"token_count"`
}

// RetrievalService answers "which parts of this document talk about X" by
// embedding the query and ranking chunks by cosine distance.
type RetrievalService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

func NewRetrievalService(db core.DbClient, embedder core.EmbeddingProvider) *RetrievalService {
	return &RetrievalService{db: db, embedder: embedder}
}

// Query returns up to k chunks ranked by similarity to the query text.
// Chunks persisted without an embedding are never returned.
func (s *RetrievalService) Query(ctx context.Context, documentID, queryText string, k int) ([]RetrievedChunk, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, core.ErrDocumentNotFound
	}
	if k <= 0 {
		k = 5
	}

	queryVec, err := s.embedder.EmbedText(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := s.db.SearchDocumentChunks(ctx, documentID, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	out := make([]RetrievedChunk, 0, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		out = append(out, RetrievedChunk{
			Text:         ch.Text,
			PageCitation: ch.PageCitation(),
			TokenCount:   ch.TokenCount,
		})
	}
	return out, nil
}
