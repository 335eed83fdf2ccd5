package core

import "context"

// EmbeddingProvider turns text into fixed-length vectors.
type EmbeddingProvider interface {
	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedTexts embeds a batch in one provider call. The output order
	// matches the input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
