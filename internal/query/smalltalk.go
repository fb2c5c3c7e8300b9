package query

import (
	"context"

	"github.com/ecommerce-chatbot/backend/internal/llm"
)

type SmallTalker struct {
	llm Completer
}

func NewSmallTalker(completer Completer) *SmallTalker {
	return &SmallTalker{llm: completer}
}

func (s *SmallTalker) Talk(ctx context.Context, query string) (llm.Stream, error) {
	return s.llm.Stream(ctx, llm.CompletionRequest{
		SystemPrompt: smallTalkPrompt,
		UserPrompt:   query,
	})
}
