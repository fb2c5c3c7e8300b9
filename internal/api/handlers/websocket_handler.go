package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/middleware/validation"
	"github.com/ecommerce-chatbot/backend/internal/query"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine         Asker
	maxQueryLength int
}

// NewWebSocketHandler answers queries with the same sanitizing and length
// limit the HTTP endpoints apply. maxQueryLength <= 0 disables the limit.
func NewWebSocketHandler(engine Asker, maxQueryLength int) *WebSocketHandler {
	return &WebSocketHandler{engine: engine, maxQueryLength: maxQueryLength}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Upgrade rejects plain HTTP requests to the WebSocket endpoint.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleConnection serves one chat session. Each {"type":"query"} message
// gets a "route" message, "chunk" messages in order, then "complete" or
// "error". Queries on one connection are answered one at a time.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	// Cancelled when the connection goes away, which aborts any answer
	// still streaming.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if msg.Type != "query" {
			continue
		}

		q, problem := validation.CheckQuery(msg.Content, h.maxQueryLength)
		if problem != "" {
			if err := sendError(c, problem); err != nil {
				return
			}
			continue
		}

		if err := h.streamResponse(ctx, c, q); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			return
		}
	}
}

// streamResponse returns an error only when the connection itself failed.
func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, content string) error {
	resp, err := h.engine.Ask(ctx, query.Request{Query: content})
	if err != nil {
		logger.Warn("Failed to process WebSocket query", zap.Error(err))
		return sendError(c, "Failed to process query")
	}
	defer resp.Stream.Close()

	if err := c.WriteJSON(fiber.Map{
		"type":     "route",
		"route":    resp.Route,
		"score":    resp.Score,
		"query_id": resp.ID,
	}); err != nil {
		return err
	}

	var writeErr error
	streamErr := llm.Forward(resp.Stream, func(chunk string) error {
		writeErr = c.WriteJSON(fiber.Map{
			"type":    "chunk",
			"content": chunk,
		})
		return writeErr
	})
	if writeErr != nil {
		return writeErr
	}
	if streamErr != nil {
		logger.Warn("WebSocket answer interrupted", zap.String("query_id", resp.ID), zap.Error(streamErr))
		return sendError(c, "The response was interrupted")
	}

	return c.WriteJSON(fiber.Map{
		"type":     "complete",
		"query_id": resp.ID,
		"route":    resp.Route,
	})
}

func sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(fiber.Map{
		"type":  "error",
		"error": errorMsg,
	})
}
