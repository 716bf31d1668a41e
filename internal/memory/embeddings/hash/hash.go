// Package hash provides a deterministic, dependency-free embedding provider.
// It hashes overlapping word shingles into a fixed-dimension unit vector, so
// the memory subsystem has a usable default Provider with no external API
// key and no real embedding math — a real provider (openai, ollama) can be
// substituted via config wherever semantic quality matters.
package hash

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/codecoder/core/internal/memory/embeddings"
)

// Provider implements embeddings.Provider using FNV-1a hashed shingles.
type Provider struct {
	dimension  int
	shingleLen int
}

var _ embeddings.Provider = (*Provider)(nil)

// Config configures the hash-based provider.
type Config struct {
	// Dimension is the output vector length. Default 256.
	Dimension int
	// ShingleLen is the number of consecutive words per shingle. Default 3.
	ShingleLen int
}

// New creates a deterministic hash-based embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 256
	}
	if cfg.ShingleLen <= 0 {
		cfg.ShingleLen = 3
	}
	return &Provider{dimension: cfg.Dimension, shingleLen: cfg.ShingleLen}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "hash" }

// Dimension returns the configured vector length.
func (p *Provider) Dimension() int { return p.dimension }

// MaxBatchSize is effectively unbounded since there is no network round trip.
func (p *Provider) MaxBatchSize() int { return 1000 }

// Embed hashes text's word shingles into a unit vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

// EmbedBatch embeds each text independently.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *Provider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec
	}

	n := p.shingleLen
	if n > len(words) {
		n = len(words)
	}
	for i := 0; i+n <= len(words); i++ {
		shingle := strings.Join(words[i:i+n], " ")
		h := fnv.New32a()
		_, _ = h.Write([]byte(shingle))
		bucket := int(h.Sum32()) % p.dimension
		if bucket < 0 {
			bucket += p.dimension
		}
		// Sign bit from a second hash keeps buckets from only ever adding,
		// which would bias every vector toward the same direction.
		h2 := fnv.New32a()
		_, _ = h2.Write([]byte(shingle + "#sign"))
		if h2.Sum32()%2 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
