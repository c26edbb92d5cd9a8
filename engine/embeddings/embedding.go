// Package embeddings implements the Embedding Service (C2): deterministic
// fixed-dimension vectorization of free text for similarity search.
//
// There is no sentence-transformer runtime in the Go ecosystem pack this
// module draws from, so generation is grounded on the same hashing-trick
// technique the tiktoken tokenizer already gives us for free: text is
// tokenized, each token is hashed into one of embeddingDim buckets, and the
// resulting bag-of-tokens vector is L2-normalized. The result is
// deterministic for a fixed model configuration and degrades gracefully
// (nil, not a panic) exactly like the service it grounds on.
package embeddings

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/errgroup"

	"github.com/learnloop/cortex/engine/tokens"
	"github.com/learnloop/cortex/pkg/logger"
)

// Service is the Embedding Service (C2) public API.
type Service struct {
	dim     int
	counter *tokens.Counter
	cache   *ristretto.Cache[string, []float32]
}

// Config configures a Service.
type Config struct {
	Dimension int
	CacheSize int64
}

// New builds a Service. A ristretto cache absorbs repeated embed(text)
// calls for the same prompt within a process lifetime.
func New(cfg Config, counter *tokens.Counter) (*Service, error) {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 384
	}
	maxCost := cfg.CacheSize
	if maxCost <= 0 {
		maxCost = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Service{dim: dim, counter: counter, cache: cache}, nil
}

// Dimension reports the configured embedding width.
func (s *Service) Dimension() int {
	return s.dim
}

// Embed returns a unit-normalized embedding for text, or nil if text is
// empty. Callers must tolerate nil by storing the memory without a vector.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	if v, ok := s.cache.Get(text); ok {
		return v
	}
	vec := s.embed(text)
	s.cache.Set(text, vec, 1)
	logger.FromContext(ctx).Debug("generated embedding", "chars", len(text), "dim", s.dim)
	return vec
}

// EmbedBatch embeds each text independently and concurrently; a failure
// for one text yields a nil at that position without aborting the batch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			out[i] = s.Embed(gCtx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// CosineSimilarity normalizes the -1..1 cosine similarity range to 0..1.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (cos + 1) / 2
}

func (s *Service) embed(text string) []float32 {
	vec := make([]float64, s.dim)
	tok := tokenize(text)
	for position, t := range tok {
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		bucket := int(h.Sum32()) % s.dim
		if bucket < 0 {
			bucket += s.dim
		}
		// A light positional decay rewards earlier tokens slightly,
		// keeping short prefixes from washing out in long inputs.
		weight := 1.0 / (1.0 + float64(position)*0.001)
		vec[bucket] += weight
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil
	}
	out := make([]float32, s.dim)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func tokenize(text string) []string {
	var tok []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tok = append(tok, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			cur = append(cur, r+32)
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tok
}
