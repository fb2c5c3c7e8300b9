package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/middleware/validation"
	"github.com/ecommerce-chatbot/backend/internal/query"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Asker interface {
	Ask(ctx context.Context, req query.Request) (*query.Response, error)
}

type HistoryReader interface {
	GetChatHistory(ctx context.Context, limit int) ([]models.ChatRecord, error)
}

type ChatHandler struct {
	engine  Asker
	history HistoryReader
}

func NewChatHandler(engine Asker, history HistoryReader) *ChatHandler {
	return &ChatHandler{
		engine:  engine,
		history: history,
	}
}

// HandleChat answers a query as a Server-Sent Events stream: one "route"
// event, a "chunk" event per piece of text, then "done" or "error".
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	q, problem := queryFrom(c)
	if problem != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": problem,
		})
	}

	resp, err := h.engine.Ask(c.UserContext(), query.Request{Query: q})
	if err != nil {
		logger.Error("Failed to process query", zap.String("query", q), zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamSSE(w, resp)
	})

	return nil
}

func streamSSE(w *bufio.Writer, resp *query.Response) {
	defer resp.Stream.Close()

	if err := writeEvent(w, "route", fiber.Map{
		"id":    resp.ID,
		"route": resp.Route,
		"score": resp.Score,
	}); err != nil {
		return
	}

	err := llm.Forward(resp.Stream, func(chunk string) error {
		return writeEvent(w, "chunk", fiber.Map{"content": chunk})
	})
	if err != nil {
		logger.Warn("Chat stream ended early", zap.String("query_id", resp.ID), zap.Error(err))
		writeEvent(w, "error", fiber.Map{"error": "The response was interrupted"})
		return
	}

	writeEvent(w, "done", fiber.Map{"id": resp.ID})
}

func writeEvent(w *bufio.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.Flush()
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	records, err := h.history.GetChatHistory(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to load chat history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	history := make([]fiber.Map, len(records))
	for i, r := range records {
		history[i] = fiber.Map{
			"id":         r.ID,
			"query":      r.Query,
			"route":      r.Route,
			"response":   r.Response,
			"latency_ms": r.LatencyMS,
			"created_at": r.CreatedAt.Unix(),
		}
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

type RouteHandler struct {
	classifier query.Classifier
}

func NewRouteHandler(classifier query.Classifier) *RouteHandler {
	return &RouteHandler{classifier: classifier}
}

// HandleRoute reports the routing decision for a query without answering it.
func (h *RouteHandler) HandleRoute(c *fiber.Ctx) error {
	q, problem := queryFrom(c)
	if problem != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": problem,
		})
	}

	result, err := h.classifier.Route(c.UserContext(), q)
	if err != nil {
		logger.Error("Failed to route query", zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Failed to route query",
		})
	}

	route := query.RouteUnknown
	if result.Matched {
		route = result.RouteName
	}

	return c.JSON(fiber.Map{
		"route":   route,
		"score":   result.Score,
		"matched": result.Matched,
	})
}

// queryFrom prefers the query already validated by the middleware. A
// non-empty problem is the client-facing reason the request is unusable.
func queryFrom(c *fiber.Ctx) (q string, problem string) {
	if q := validation.Query(c); q != "" {
		return q, ""
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return "", "Invalid request body"
	}

	q = strings.TrimSpace(req.Query)
	if q == "" {
		return "", "Query is required"
	}
	return q, ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrEmptyQuery), errors.Is(err, router.ErrEmptyQuery):
		return fiber.StatusBadRequest
	case errors.Is(err, router.ErrIndexNotReady):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, llm.ErrUpstreamServiceFailure):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
