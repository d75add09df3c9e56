package core

import "context"

// EmbeddingProvider turns texts into vectors, one per input and in input order.
//
// Implementations mark throttling, 5xx and timeouts with retry.MarkTransient
// and wrap ErrInputTooLarge when the provider rejects the input itself.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbeddingProvider is implemented by providers whose models embed search
// queries differently from indexed documents.
type QueryEmbeddingProvider interface {
	EmbeddingProvider
	ForQueries() EmbeddingProvider
}
