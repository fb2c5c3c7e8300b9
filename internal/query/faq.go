package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/embedding"
	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/vector/milvus"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const (
	DefaultFAQTopK = 2

	noFAQAnswer = "I don't know the answer to that. Please contact customer support."
)

// Completer is the part of the LLM client the answer paths need.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	Stream(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error)
}

type FAQSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]milvus.Match, error)
}

type FAQAnswerer struct {
	embedder embedding.Embedder
	searcher FAQSearcher
	llm      Completer
	topK     int
}

func NewFAQAnswerer(embedder embedding.Embedder, searcher FAQSearcher, completer Completer, topK int) *FAQAnswerer {
	if topK <= 0 {
		topK = DefaultFAQTopK
	}
	return &FAQAnswerer{
		embedder: embedder,
		searcher: searcher,
		llm:      completer,
		topK:     topK,
	}
}

// AnswerFAQ answers from the closest stored FAQ entries only. When nothing
// can be retrieved the reply is a fixed "don't know" message and the model
// is not called.
func (f *FAQAnswerer) AnswerFAQ(ctx context.Context, query string) (llm.Stream, error) {
	matches, err := f.retrieve(ctx, query)
	if err != nil {
		logger.Warn("FAQ retrieval failed", zap.Error(err))
		return llm.StaticStream(noFAQAnswer), nil
	}

	metrics.FAQMatches.Observe(float64(len(matches)))

	if len(matches) == 0 {
		logger.Info("No FAQ entries matched", zap.String("query", query))
		return llm.StaticStream(noFAQAnswer), nil
	}

	answers := make([]string, len(matches))
	for i, m := range matches {
		answers[i] = m.Answer
	}

	stream, err := f.llm.Stream(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(faqPrompt, strings.Join(answers, "\n")),
		UserPrompt:   query,
	})
	if err != nil {
		return nil, err
	}

	return stream, nil
}

func (f *FAQAnswerer) retrieve(ctx context.Context, query string) ([]milvus.Match, error) {
	vectors, err := f.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	matches, err := f.searcher.Search(ctx, vectors[0], f.topK)
	if err != nil {
		return nil, err
	}

	if len(matches) > f.topK {
		matches = matches[:f.topK]
	}

	return matches, nil
}
