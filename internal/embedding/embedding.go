// Package embedding defines the text-to-vector contract shared by the
// intent router and the FAQ path, plus a read-through cache in front of it.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
	"github.com/ecommerce-chatbot/backend/pkg/utils"
)

// Embedder turns texts into fixed-length vectors, one per input, in input
// order. Implementations must be deterministic for a fixed model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores vectors by opaque key.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from Cache and sends only the misses
// upstream, in a single batch. Cache failures degrade to misses.
type CachedEmbedder struct {
	next  Embedder
	cache Cache
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, cache Cache, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		cache: cache,
		model: model,
		ttl:   ttl,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		keys[i] = utils.CacheKey(e.model, text)

		vec, ok, err := e.cache.GetEmbedding(ctx, keys[i])
		if err != nil {
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		}
		if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			result[i] = vec
			continue
		}

		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for j, vec := range vectors {
		i := missIdx[j]
		result[i] = vec
		if err := e.cache.SetEmbedding(ctx, keys[i], vec, e.ttl); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	logger.Debug("Embeddings resolved",
		zap.Int("requested", len(texts)),
		zap.Int("cache_misses", len(missTexts)),
	)

	return result, nil
}
