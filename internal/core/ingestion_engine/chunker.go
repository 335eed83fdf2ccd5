package ingestion_engine

import (
	"fmt"
	"strings"
)

// Chunker groups a document's page texts into token-bounded chunks with
// overlap, keeping track of which page contributed every token so each
// chunk carries a citable page range.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker validates the window configuration up front: an overlap equal
// to or larger than the window would re-emit the same tokens forever.
func NewChunker(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("overlapTokens must not be negative, got %d", overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlapTokens (%d) must be smaller than maxTokens (%d)", overlapTokens, maxTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// pageToken is one token plus the page it came from.
type pageToken struct {
	text string
	page int
}

// Chunk runs the sliding window over the ordered page texts.
//
// Tokens are whitespace-delimited words; a chunk boundary is always a token
// boundary. When the buffer reaches maxTokens the chunk is emitted and the
// trailing overlapTokens tokens seed the next buffer, original page
// attribution intact. The final partial buffer is emitted only if it holds
// tokens that arrived after the last emission and its text is non-blank.
func (c *Chunker) Chunk(pages []PageText) []Chunk {
	var stream []pageToken
	for _, p := range pages {
		for _, w := range strings.Fields(p.Text) {
			stream = append(stream, pageToken{text: w, page: p.Page})
		}
	}
	if len(stream) == 0 {
		return nil
	}

	var (
		chunks []Chunk
		buf    []pageToken
		fresh  int // tokens appended since the last emission
	)

	emit := func() {
		words := make([]string, len(buf))
		for i, t := range buf {
			words[i] = t.text
		}
		text := strings.Join(words, " ")
		if strings.TrimSpace(text) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:       text,
			TokenCount: len(buf),
			PageStart:  buf[0].page,
			PageEnd:    buf[len(buf)-1].page,
		})
	}

	for _, tok := range stream {
		buf = append(buf, tok)
		fresh++
		if len(buf) >= c.maxTokens {
			emit()
			// Seed the next buffer with the window's tail.
			tail := buf[len(buf)-c.overlapTokens:]
			buf = append(make([]pageToken, 0, c.maxTokens), tail...)
			fresh = 0
		}
	}

	// Trailing tokens that never filled a window. fresh == 0 means the
	// buffer holds only overlap already emitted with the previous chunk.
	if fresh > 0 {
		emit()
	}

	return chunks
}
