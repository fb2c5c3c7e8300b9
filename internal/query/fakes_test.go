package query

import (
	"context"
	"io"
	"sync"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/internal/vector/milvus"
)

type fakeStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeCompleter struct {
	content     string
	completeErr error
	chunks      []string
	streamErr   error
	midErr      error

	completeReqs []llm.CompletionRequest
	streamReqs   []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.completeReqs = append(f.completeReqs, req)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func (f *fakeCompleter) Stream(_ context.Context, req llm.CompletionRequest) (llm.Stream, error) {
	f.streamReqs = append(f.streamReqs, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeStream{chunks: f.chunks, err: f.midErr}, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeSearcher struct {
	matches []milvus.Match
	err     error
	topK    int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, topK int) ([]milvus.Match, error) {
	f.topK = topK
	return f.matches, f.err
}

type fakeRows struct {
	rows    []models.Row
	err     error
	queries []string
	limit   int
}

func (f *fakeRows) QueryRows(_ context.Context, query string, limit int) ([]models.Row, error) {
	f.queries = append(f.queries, query)
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type fakeClassifier struct {
	result router.Result
	err    error
}

func (f *fakeClassifier) Route(context.Context, string) (router.Result, error) {
	return f.result, f.err
}

type fakeHistory struct {
	mu      sync.Mutex
	records []models.ChatRecord
}

func (f *fakeHistory) InsertChatRecord(_ context.Context, r *models.ChatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *r)
	return nil
}

type fakeCounter struct {
	routes []string
}

func (f *fakeCounter) IncrementRouteCount(_ context.Context, route string) error {
	f.routes = append(f.routes, route)
	return nil
}
