// Package routertest provides a deterministic keyword embedder so routing
// can be exercised without an embedding service.
package routertest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

const noiseDims = 8

// KeywordEmbedder maps text onto one axis per route, weighted by how many
// of that route's keywords the text contains, plus a small hash-derived
// component so distinct texts get distinct vectors. Text with no keywords
// lands almost orthogonal to every route.
type KeywordEmbedder struct {
	order    []string
	keywords map[string][]string
	Err      error

	mu    sync.Mutex
	calls int
	texts int
}

func NewKeywordEmbedder() *KeywordEmbedder {
	return &KeywordEmbedder{
		order: []string{"faq", "sql", "small_talk"},
		keywords: map[string][]string{
			"faq": {
				"return", "refund", "track", "order", "payment", "hdfc", "credit card",
				"cancel", "cash on delivery", "exchange", "shipping", "customer support", "policy",
			},
			"sql": {
				"shoes", "sneakers", "price", "rs", "discount", "rated", "rating",
				"cheapest", "puma", "nike", "adidas", "on sale",
			},
			"small_talk": {
				"hello", "hi", "how are you", "your name", "robot", "joke",
				"good morning", "thanks", "what can you do", "who created",
			},
		},
	}
}

func (e *KeywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

// Calls reports how many Embed calls were made.
func (e *KeywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *KeywordEmbedder) vector(text string) []float32 {
	padded := " " + tokenize(text) + " "

	v := make([]float32, len(e.order)+noiseDims)
	for axis, route := range e.order {
		for _, kw := range e.keywords[route] {
			if strings.Contains(padded, " "+kw+" ") {
				v[axis]++
			}
		}
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()
	for i := 0; i < noiseDims; i++ {
		v[len(e.order)+i] = float32((sum>>(i*8))&0xff) / 255 * 0.05
	}
	return v
}

func tokenize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
