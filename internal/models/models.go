package models

import (
	"fmt"
	"time"
)

// Document represents an uploaded library document.
type Document struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	FileName    string    `db:"file_name" json:"file_name"`
	StoragePath string    `db:"storage_path" json:"storage_path"` // object key of the source file
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	PageCount   int       `db:"page_count" json:"page_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PageImage is one rendered page of a document. (document_id, page_number)
// is unique; rows are created by the ingestion pipeline and never mutated,
// only deleted in bulk on regeneration.
type PageImage struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	PageNumber    int       `db:"page_number" json:"page_number"` // 1-indexed
	Width         int       `db:"width" json:"width"`             // original page width, px
	Height        int       `db:"height" json:"height"`
	ThumbnailPath string    `db:"thumbnail_path" json:"thumbnail_path"`
	MediumPath    string    `db:"medium_path" json:"medium_path"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentChunk is one retrievable unit of document text. ChunkIndex values
// are contiguous from 0 per generation run. Embedding is nil when the
// embedding call failed; such chunks are excluded from similarity search
// but remain listable.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	TokenCount int       `db:"token_count" json:"token_count"`
	PageStart  int       `db:"page_start" json:"page_start"` // inclusive, PageStart <= PageEnd
	PageEnd    int       `db:"page_end" json:"page_end"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column, nil = NULL
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PageCitation renders the human-readable page reference for the chunk.
func (c *DocumentChunk) PageCitation() string {
	if c.PageStart == c.PageEnd {
		return fmt.Sprintf("Page %d", c.PageStart)
	}
	return fmt.Sprintf("Pages %d-%d", c.PageStart, c.PageEnd)
}
