// Package hash provides a deterministic, non-semantic embedder derived from
// the MD5 digest of the input text. It exists so the pipeline can run without
// an embedding model; similar meaning does not produce similar vectors.
package hash

import (
	"context"
	"crypto/md5" //nolint:gosec // digest is used as a fingerprint, not for security
	"encoding/hex"
	"strconv"

	"github.com/docuchat/docuchat/internal/domain"
)

// Dimensions is the length of every vector this embedder produces.
const Dimensions = 128

// Embedder maps text to a fixed-length vector built from its MD5 digest.
type Embedder struct{}

// New creates a hash embedder.
func New() *Embedder { return &Embedder{} }

// Embed implements domain.Embedder. It never fails.
func (e *Embedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: Vector(text)}, nil
}

// BatchEmbed implements domain.BatchEmbedder, preserving input order.
func (e *Embedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// Vector returns the embedding of text: each byte of the hex digest
// normalized to [0,1], zero-padded to Dimensions.
func Vector(text string) []float32 {
	sum := md5.Sum([]byte(text)) //nolint:gosec // see import
	digest := hex.EncodeToString(sum[:])

	vec := make([]float32, Dimensions)
	for i := 0; i+2 <= len(digest); i += 2 {
		b, _ := strconv.ParseUint(digest[i:i+2], 16, 8)
		vec[i/2] = float32(b) / 255.0
	}
	return vec
}
