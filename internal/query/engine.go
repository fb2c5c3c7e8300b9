package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const RouteUnknown = "unknown"

const historyWriteTimeout = 5 * time.Second

type Classifier interface {
	Route(ctx context.Context, query string) (router.Result, error)
}

type FAQHandler interface {
	AnswerFAQ(ctx context.Context, query string) (llm.Stream, error)
}

type StructuredHandler interface {
	AnswerStructured(ctx context.Context, query string) llm.Stream
}

type SmallTalkHandler interface {
	Talk(ctx context.Context, query string) (llm.Stream, error)
}

type HistoryStore interface {
	InsertChatRecord(ctx context.Context, record *models.ChatRecord) error
}

type RouteCounter interface {
	IncrementRouteCount(ctx context.Context, route string) error
}

type Handlers struct {
	FAQ        FAQHandler
	Structured StructuredHandler
	SmallTalk  SmallTalkHandler
}

type Engine struct {
	classifier Classifier
	handlers   Handlers
	history    HistoryStore
	counter    RouteCounter
}

type Request struct {
	Query string
}

// Response carries the routing decision and the answer stream. The caller
// must drain or Close the stream.
type Response struct {
	ID     string
	Query  string
	Route  string
	Score  float64
	Stream llm.Stream
}

// NewEngine wires the router to the answer paths. history and counter may
// be nil.
func NewEngine(classifier Classifier, handlers Handlers, history HistoryStore, counter RouteCounter) *Engine {
	return &Engine{
		classifier: classifier,
		handlers:   handlers,
		history:    history,
		counter:    counter,
	}
}

func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	queryID := uuid.New().String()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := e.classifier.Route(ctx, query)
	if err != nil {
		metrics.QueryTotal.WithLabelValues(RouteUnknown, "error").Inc()
		return nil, fmt.Errorf("failed to route query: %w", err)
	}

	route := RouteUnknown
	if result.Matched {
		route = result.RouteName
	}

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("query", query),
		zap.String("route", route),
		zap.Float64("score", result.Score),
	)

	metrics.RouteScore.WithLabelValues(route).Observe(result.Score)
	e.countRoute(ctx, route)

	stream, err := e.dispatch(ctx, route, query)
	if err != nil {
		metrics.QueryTotal.WithLabelValues(route, "error").Inc()
		return nil, fmt.Errorf("failed to answer %s query: %w", route, err)
	}

	return &Response{
		ID:    queryID,
		Query: query,
		Route: route,
		Score: result.Score,
		Stream: &recordingStream{
			inner:   stream,
			engine:  e,
			id:      queryID,
			query:   query,
			route:   route,
			started: startTime,
		},
	}, nil
}

func (e *Engine) dispatch(ctx context.Context, route, query string) (llm.Stream, error) {
	switch route {
	case router.RouteFAQ:
		return e.handlers.FAQ.AnswerFAQ(ctx, query)
	case router.RouteSQL:
		return e.handlers.Structured.AnswerStructured(ctx, query), nil
	case router.RouteSmallTalk:
		return e.handlers.SmallTalk.Talk(ctx, query)
	default:
		return llm.StaticStream(fmt.Sprintf("Route '%s' is not implemented.", route)), nil
	}
}

func (e *Engine) countRoute(ctx context.Context, route string) {
	if e.counter == nil {
		return
	}
	if err := e.counter.IncrementRouteCount(ctx, route); err != nil {
		logger.Warn("Failed to increment route counter", zap.String("route", route), zap.Error(err))
	}
}

func (e *Engine) record(s *recordingStream, err error) {
	latency := time.Since(s.started)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QueryDuration.WithLabelValues(s.route).Observe(latency.Seconds())
	metrics.QueryTotal.WithLabelValues(s.route, status).Inc()

	if e.history == nil {
		return
	}

	// The request context is often gone by the time the stream ends.
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	record := &models.ChatRecord{
		ID:        s.id,
		Query:     s.query,
		Route:     s.route,
		Response:  s.text.String(),
		LatencyMS: latency.Milliseconds(),
		CreatedAt: time.Now(),
	}
	if err := e.history.InsertChatRecord(ctx, record); err != nil {
		logger.Warn("Failed to record chat", zap.String("query_id", s.id), zap.Error(err))
	}
}

// recordingStream passes chunks through and records the full exchange once
// the stream ends, fails or is closed.
type recordingStream struct {
	inner   llm.Stream
	engine  *Engine
	id      string
	query   string
	route   string
	started time.Time

	text strings.Builder
	done bool
}

func (s *recordingStream) Recv() (string, error) {
	chunk, err := s.inner.Recv()
	if err == nil {
		s.text.WriteString(chunk)
		return chunk, nil
	}

	if errors.Is(err, io.EOF) {
		s.finish(nil)
	} else {
		s.finish(err)
	}
	return "", err
}

func (s *recordingStream) Close() error {
	s.finish(nil)
	return s.inner.Close()
}

func (s *recordingStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.engine.record(s, err)
}
