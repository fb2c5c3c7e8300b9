package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/api"
	"github.com/ecommerce-chatbot/backend/internal/api/handlers"
	"github.com/ecommerce-chatbot/backend/internal/bootstrap"
	"github.com/ecommerce-chatbot/backend/internal/ingestion"
	"github.com/ecommerce-chatbot/backend/pkg/config"
	appLogger "github.com/ecommerce-chatbot/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting e-commerce chatbot API server")

	ctx := context.Background()

	services := bootstrap.New(ctx, cfg)
	defer services.Close()

	store, err := services.OpenStore(ctx)
	if err != nil {
		appLogger.Fatal("Failed to open SQLite store", zap.Error(err))
	}

	products, err := services.OpenProducts()
	if err != nil {
		appLogger.Fatal("Failed to open read-only product store", zap.Error(err))
	}

	vectors, err := services.OpenVectors(ctx)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}

	if cfg.Ingestion.IngestOnBoot {
		n, err := ingestion.NewFAQIngester(vectors, services.Embedder).Ingest(ctx, cfg.Ingestion.FAQPath)
		if err != nil {
			appLogger.Fatal("Failed to ingest FAQ data", zap.Error(err))
		}
		appLogger.Info("FAQ ingestion finished", zap.Int("inserted", n))
	}
	if err := vectors.EnsureCollection(ctx); err != nil {
		appLogger.Fatal("Failed to prepare FAQ collection", zap.Error(err))
	}

	r, err := services.BuildRouter(ctx)
	if err != nil {
		appLogger.Fatal("Failed to build intent router", zap.Error(err))
	}

	engine := services.NewEngine(r, vectors, products, store)

	dependencies := map[string]handlers.Pinger{
		"sqlite": store,
		"milvus": vectors,
	}
	if services.Cache != nil {
		dependencies["redis"] = services.Cache
	}

	app, cleanup := api.NewApp(api.Config{
		ReadTimeout:          time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:         time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:            cfg.Server.BodyLimit,
		MaxQueryLength:       cfg.Server.MaxQueryLength,
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		IsDevelopment:        cfg.Server.IsDevelopment,
		AccessLog:            true,
	}, api.Deps{
		Engine:       engine,
		Classifier:   r,
		Router:       r,
		History:      store,
		Dependencies: dependencies,
	})
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
