package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type ReadinessChecker interface {
	Ready() bool
}

// Pinger is a dependency whose reachability is reported by the readiness
// endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	router       ReadinessChecker
	dependencies map[string]Pinger
}

func NewHealthHandler(router ReadinessChecker, dependencies map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		router:       router,
		dependencies: dependencies,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready succeeds once the router index is built and every dependency
// answers a ping.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"router": "ok"}
	ready := true

	if !h.router.Ready() {
		checks["router"] = "index not built"
		ready = false
	}

	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "not ready"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": checks,
	})
}
