package ingestion_engine

import "github.com/openshelf-dev/openshelf/internal/core"

// IngestConfig tunes the page-first pipeline.
//
// MaxTokens:     tokens per chunk before the window closes (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:     how many chunks to embed in one provider call (e.g., 16).
// MaxPages:      hard page-count ceiling for synchronous processing.
// Resolutions:   rendering tiers produced for every page.
// RenderQuality: JPEG quality for page images.
type IngestConfig struct {
	MaxTokens     int
	OverlapTokens int
	BatchSize     int
	MaxPages      int
	Resolutions   []core.Resolution
	RenderQuality int
}

// DefaultIngestConfig mirrors the production defaults.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		MaxTokens:     500,
		OverlapTokens: 50,
		BatchSize:     16,
		MaxPages:      100,
		Resolutions:   core.DefaultResolutions,
		RenderQuality: 85,
	}
}

// PageText is one page's extracted text, in page order.
type PageText struct {
	Page int
	Text string
}

// Chunk is the chunker's output unit: a token-bounded span of text tagged
// with the inclusive page range its tokens came from.
type Chunk struct {
	Text       string
	TokenCount int
	PageStart  int
	PageEnd    int
}
