// Package embedding provides a pluggable interface for text embedding
// providers. The core only requires deterministic dimensionality; no
// specific model is mandated.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// DefaultDims is the vector dimensionality used when none is configured.
const DefaultDims = 384

// HashEmbedder is a deterministic placeholder embedder. It hashes each
// token into a fixed-length vector and L2-normalizes the result, so that
// texts sharing tokens produce vectors with higher cosine similarity.
// It is intended for tests and local development, not semantic quality.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash-based embedder with the given
// dimensionality. dims <= 0 falls back to DefaultDims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &HashEmbedder{dims: dims}
}

// Embed hashes the lower-cased tokens of text into a normalized vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		idx := int(binary.BigEndian.Uint32(sum[:4])) % e.dims
		if idx < 0 {
			idx += e.dims
		}
		// Second hash word decides the sign so tokens spread over both
		// halves of the space.
		if binary.BigEndian.Uint32(sum[4:8])%2 == 0 {
			vec[idx] += 1
		} else {
			vec[idx] -= 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dims returns the vector dimensionality.
func (e *HashEmbedder) Dims() int { return e.dims }
