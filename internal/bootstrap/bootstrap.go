// Package bootstrap constructs the shared clients from configuration for
// the server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/ecommerce-chatbot/backend/internal/cache/redis"
	"github.com/ecommerce-chatbot/backend/internal/embedding"
	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/query"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/storage/sqlite"
	"github.com/ecommerce-chatbot/backend/internal/vector/milvus"
	"github.com/ecommerce-chatbot/backend/pkg/config"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

// Services holds the clients every entry point needs. Stores that only some
// commands use are opened on demand and closed with the rest.
type Services struct {
	Config   *config.Config
	LLM      *llm.Client
	Embedder embedding.Embedder
	Cache    *rediscache.Client

	closers []func() error
}

// New creates the completion/embedding client and, when enabled, the Redis
// embedding cache. An unreachable Redis is logged and skipped.
func New(ctx context.Context, cfg *config.Config) *Services {
	metrics.Init()

	s := &Services{Config: cfg}

	s.LLM = llm.NewClient(llm.Config{
		BaseURL:          cfg.LLM.BaseURL,
		APIKey:           cfg.LLM.APIKey,
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		Timeout:          time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		EmbeddingBaseURL: cfg.Embedding.BaseURL,
		EmbeddingAPIKey:  cfg.Embedding.APIKey,
		EmbeddingModel:   cfg.Embedding.Model,
	})
	s.Embedder = s.LLM

	if cfg.Redis.Enabled {
		cache, err := rediscache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			s.Cache = cache
			s.closers = append(s.closers, cache.Close)
			s.Embedder = embedding.NewCachedEmbedder(s.LLM, cache, cfg.Embedding.Model,
				time.Duration(cfg.Embedding.CacheTTL)*time.Second)
		}
	}

	return s
}

// OpenStore opens the read-write SQLite store and makes sure the schema
// exists.
func (s *Services) OpenStore(ctx context.Context) (*sqlite.Client, error) {
	store, err := sqlite.NewClient(s.Config.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	return store, nil
}

// OpenProducts opens the read-only connection used to run generated
// queries. The database file must already exist.
func (s *Services) OpenProducts() (*sqlite.Client, error) {
	products, err := sqlite.NewReadOnlyClient(s.Config.SQLite.Path)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, products.Close)
	return products, nil
}

func (s *Services) OpenVectors(ctx context.Context) (*milvus.Client, error) {
	vectors, err := milvus.NewClient(ctx,
		s.Config.Milvus.Endpoint,
		s.Config.Milvus.APIKey,
		s.Config.Milvus.CollectionName,
		s.Config.Embedding.Dimension,
	)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, vectors.Close)
	return vectors, nil
}

// BuildRouter registers the default routes with their configured thresholds
// and builds the index.
func (s *Services) BuildRouter(ctx context.Context) (*router.Router, error) {
	r := router.New(s.Embedder,
		router.WithThreshold(s.Config.Router.Threshold),
		router.WithTopK(s.Config.Router.TopK),
	)

	routes := router.DefaultRoutes()
	for i := range routes {
		if t, ok := s.Config.Router.Thresholds[routes[i].Name]; ok {
			routes[i].Threshold = t
		}
	}

	if err := r.Add(routes...); err != nil {
		return nil, err
	}
	if err := r.Build(ctx); err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return r, nil
}

// NewEngine wires the three answering paths behind the router. history may
// be nil, in which case nothing is recorded.
func (s *Services) NewEngine(r *router.Router, vectors *milvus.Client, products *sqlite.Client, history query.HistoryStore) *query.Engine {
	handlers := query.Handlers{
		FAQ:        query.NewFAQAnswerer(s.Embedder, vectors, s.LLM, s.Config.Milvus.TopK),
		Structured: query.NewStructuredAnswerer(s.LLM, products),
		SmallTalk:  query.NewSmallTalker(s.LLM),
	}

	var counter query.RouteCounter
	if s.Cache != nil {
		counter = s.Cache
	}

	return query.NewEngine(r, handlers, history, counter)
}

// Close releases everything opened through s, newest first.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
