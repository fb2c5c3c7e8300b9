package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const (
	MaxResultRows = 5

	noProductsMessage   = "I couldn't find any products matching your request."
	unsafeQueryMessage  = "I can only answer questions that read product data."
	errorMessagePrefix  = "An error occurred: "
	generateTemperature = 0.2
	generateMaxTokens   = 1024
	summarizeMaxTokens  = 2048
)

// RowQuerier runs a read-only statement and returns at most limit rows.
type RowQuerier interface {
	QueryRows(ctx context.Context, query string, limit int) ([]models.Row, error)
}

type StructuredAnswerer struct {
	llm   Completer
	store RowQuerier
}

func NewStructuredAnswerer(completer Completer, store RowQuerier) *StructuredAnswerer {
	return &StructuredAnswerer{llm: completer, store: store}
}

// AnswerStructured turns a product question into SQL, runs it and streams a
// summary of the leading rows. Failures are reported as a single text chunk
// instead of an error.
func (s *StructuredAnswerer) AnswerStructured(ctx context.Context, query string) llm.Stream {
	sqlQuery, err := s.generate(ctx, query)
	if err != nil {
		return s.fail(query, err)
	}

	if err := validate(sqlQuery); err != nil {
		return s.fail(query, fmt.Errorf("%w: %q", err, sqlQuery))
	}

	rows, err := s.store.QueryRows(ctx, sqlQuery, MaxResultRows)
	if err != nil {
		return s.fail(query, err)
	}

	logger.Info("Structured query executed",
		zap.String("sql", sqlQuery),
		zap.Int("rows", len(rows)),
	)

	if len(rows) == 0 {
		return s.fail(query, ErrEmptyResult)
	}

	stream, err := s.llm.Stream(ctx, llm.CompletionRequest{
		SystemPrompt: comprehensionPrompt,
		UserPrompt:   fmt.Sprintf("Question: %s\nData: %s", query, formatRows(rows)),
		Temperature:  generateTemperature,
		MaxTokens:    summarizeMaxTokens,
	})
	if err != nil {
		return s.fail(query, err)
	}

	return &errorReportingStream{inner: stream}
}

func (s *StructuredAnswerer) generate(ctx context.Context, query string) (string, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: sqlPrompt,
		UserPrompt:   query,
		Temperature:  generateTemperature,
		MaxTokens:    generateMaxTokens,
	})
	if err != nil {
		return "", err
	}

	return extractSQL(resp.Content)
}

func (s *StructuredAnswerer) fail(query string, err error) llm.Stream {
	if errors.Is(err, ErrEmptyResult) {
		metrics.StructuredQueryOutcome.WithLabelValues("empty").Inc()
		return llm.StaticStream(noProductsMessage)
	}
	if errors.Is(err, ErrUnsafeQuery) {
		metrics.StructuredQueryOutcome.WithLabelValues("unsafe").Inc()
		logger.Warn("Rejected generated query", zap.String("query", query), zap.Error(err))
		return llm.StaticStream(unsafeQueryMessage)
	}

	metrics.StructuredQueryOutcome.WithLabelValues("error").Inc()
	logger.Error("Structured query failed", zap.String("query", query), zap.Error(err))
	return llm.StaticStream(errorMessagePrefix + err.Error())
}

// extractSQL returns the trimmed text between the first <SQL> and the
// following </SQL>.
func extractSQL(content string) (string, error) {
	_, rest, ok := strings.Cut(content, "<SQL>")
	if !ok {
		return "", ErrMalformedModelResponse
	}
	body, _, ok := strings.Cut(rest, "</SQL>")
	if !ok {
		return "", ErrMalformedModelResponse
	}
	return strings.TrimSpace(body), nil
}

func validate(sqlQuery string) error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlQuery)), "SELECT") {
		return ErrUnsafeQuery
	}
	return nil
}

func formatRows(rows []models.Row) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// errorReportingStream turns a mid-stream failure into one final error
// chunk so the caller sees what was sent so far plus the reason it stopped.
// The outcome is counted once, when the summary ends.
type errorReportingStream struct {
	inner  llm.Stream
	failed bool
	ended  bool
}

func (s *errorReportingStream) Recv() (string, error) {
	if s.failed || s.ended {
		return "", io.EOF
	}

	chunk, err := s.inner.Recv()
	if err == nil {
		return chunk, nil
	}
	if errors.Is(err, io.EOF) {
		s.ended = true
		metrics.StructuredQueryOutcome.WithLabelValues("ok").Inc()
		return chunk, err
	}

	s.failed = true
	metrics.StructuredQueryOutcome.WithLabelValues("error").Inc()
	logger.Error("Summary stream failed", zap.Error(err))
	return errorMessagePrefix + err.Error(), nil
}

func (s *errorReportingStream) Close() error {
	return s.inner.Close()
}
