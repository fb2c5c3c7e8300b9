// Package api assembles the HTTP surface: middleware, REST and streaming
// endpoints, and the Prometheus scrape endpoint.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/ecommerce-chatbot/backend/internal/api/handlers"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/middleware/ratelimit"
	"github.com/ecommerce-chatbot/backend/internal/middleware/security"
	"github.com/ecommerce-chatbot/backend/internal/middleware/validation"
	"github.com/ecommerce-chatbot/backend/internal/query"
	appLogger "github.com/ecommerce-chatbot/backend/pkg/logger"
)

const defaultMaxQueryLength = 1000

type Config struct {
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	BodyLimit            int
	MaxQueryLength       int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	IsDevelopment        bool
	AccessLog            bool
}

type Deps struct {
	Engine       handlers.Asker
	Classifier   query.Classifier
	Router       handlers.ReadinessChecker
	History      handlers.HistoryReader
	Dependencies map[string]handlers.Pinger
}

// NewApp builds the fiber app. The returned func releases background
// resources and should run after the app shuts down.
func NewApp(cfg Config, deps Deps) (*fiber.App, func()) {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = defaultMaxQueryLength
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, " + ratelimit.SessionHeader,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})

	chatHandler := handlers.NewChatHandler(deps.Engine, deps.History)
	routeHandler := handlers.NewRouteHandler(deps.Classifier)
	wsHandler := handlers.NewWebSocketHandler(deps.Engine, cfg.MaxQueryLength)
	healthHandler := handlers.NewHealthHandler(deps.Router, deps.Dependencies)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	limit := limiter.Middleware()
	validate := validation.Middleware(validation.Config{
		MaxQueryLength: cfg.MaxQueryLength,
		Logger:         appLogger.GetLogger(),
	})

	api.Post("/chat", limit, validate, chatHandler.HandleChat)
	api.Get("/chat/history", limit, chatHandler.GetHistory)
	api.Post("/route", limit, validate, routeHandler.HandleRoute)
	api.Get("/ws", limit, handlers.Upgrade, websocket.New(wsHandler.HandleConnection))

	return app, limiter.Stop
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
