// Package router classifies free-text queries into intents by nearest
// neighbour search over embedded example utterances.
//
// Scoring: the query is compared by cosine similarity with every indexed
// utterance; the top K neighbours are grouped by route and each group is
// aggregated (mean by default). The route with the highest aggregate wins,
// with ties going to the route registered first. The winner only counts as
// matched when its best neighbour reaches the route's threshold.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/embedding"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

var (
	ErrIndexNotReady = errors.New("router index not ready")
	ErrEmptyQuery    = errors.New("query is empty")
	ErrEmptyRoute    = errors.New("route must have a name and at least one utterance")
	ErrDuplicate     = errors.New("route already registered")
)

const (
	DefaultThreshold = 0.3
	DefaultTopK      = 5
)

type Aggregation string

const (
	AggregateMean Aggregation = "mean"
	AggregateSum  Aggregation = "sum"
	AggregateMax  Aggregation = "max"
)

// Route is a named intent and the example utterances that define it.
// A zero Threshold uses the router default.
type Route struct {
	Name       string
	Utterances []string
	Threshold  float64
}

// Result is the outcome of routing one query. RouteName is empty when no
// route cleared its threshold.
type Result struct {
	RouteName string
	Score     float64
	Matched   bool
}

type indexedUtterance struct {
	route  int
	text   string
	vector []float32
}

type Router struct {
	embedder    embedding.Embedder
	threshold   float64
	topK        int
	aggregation Aggregation

	mu     sync.RWMutex
	routes []Route
	index  []indexedUtterance
	ready  bool
}

type Option func(*Router)

func WithThreshold(threshold float64) Option {
	return func(r *Router) { r.threshold = threshold }
}

func WithTopK(k int) Option {
	return func(r *Router) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithAggregation(a Aggregation) Option {
	return func(r *Router) { r.aggregation = a }
}

func New(embedder embedding.Embedder, opts ...Option) *Router {
	r := &Router{
		embedder:    embedder,
		threshold:   DefaultThreshold,
		topK:        DefaultTopK,
		aggregation: AggregateMean,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers routes. The index becomes stale and Build must run again
// before the next Route call.
func (r *Router) Add(routes ...Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, route := range routes {
		if strings.TrimSpace(route.Name) == "" || len(route.Utterances) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyRoute, route.Name)
		}
		for _, existing := range r.routes {
			if existing.Name == route.Name {
				return fmt.Errorf("%w: %q", ErrDuplicate, route.Name)
			}
		}

		utterances := make([]string, len(route.Utterances))
		copy(utterances, route.Utterances)
		route.Utterances = utterances

		r.routes = append(r.routes, route)
	}

	r.ready = false
	r.index = nil
	return nil
}

// Build embeds every utterance of every route in one batch and swaps in
// the new index.
func (r *Router) Build(ctx context.Context) error {
	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	if len(routes) == 0 {
		return fmt.Errorf("%w: no routes registered", ErrIndexNotReady)
	}

	var texts []string
	var owners []int
	for i, route := range routes {
		for _, u := range route.Utterances {
			texts = append(texts, u)
			owners = append(owners, i)
		}
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed utterances: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("failed to embed utterances: got %d vectors for %d utterances", len(vectors), len(texts))
	}

	index := make([]indexedUtterance, len(texts))
	for i := range texts {
		index[i] = indexedUtterance{
			route:  owners[i],
			text:   texts[i],
			vector: normalize(vectors[i]),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Add may have run while we were embedding.
	if len(r.routes) != len(routes) {
		return fmt.Errorf("%w: routes changed during build", ErrIndexNotReady)
	}

	r.index = index
	r.ready = true

	logger.Info("Router index built",
		zap.Int("routes", len(routes)),
		zap.Int("utterances", len(index)),
	)

	return nil
}

func (r *Router) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Routes returns a copy of the registered routes in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Router) Route(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, ErrEmptyQuery
	}

	r.mu.RLock()
	ready, index, routes := r.ready, r.index, r.routes
	r.mu.RUnlock()

	if !ready || len(index) == 0 {
		return Result{}, ErrIndexNotReady
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return Result{}, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	result := r.classify(normalize(vectors[0]), index, routes)

	logger.Debug("Query routed",
		zap.String("query", query),
		zap.String("route", result.RouteName),
		zap.Float64("score", result.Score),
		zap.Bool("matched", result.Matched),
	)

	return result, nil
}

type neighbour struct {
	route int
	pos   int
	score float64
}

func (r *Router) classify(query []float32, index []indexedUtterance, routes []Route) Result {
	neighbours := make([]neighbour, len(index))
	for i, u := range index {
		neighbours[i] = neighbour{route: u.route, pos: i, score: dot(query, u.vector)}
	}

	// Stable on index position so equal scores resolve the same way every time.
	sort.SliceStable(neighbours, func(i, j int) bool {
		return neighbours[i].score > neighbours[j].score
	})

	k := min(r.topK, len(neighbours))
	top := neighbours[:k]

	scores := make([][]float64, len(routes))
	for _, n := range top {
		scores[n.route] = append(scores[n.route], n.score)
	}

	best := -1
	bestScore := math.Inf(-1)
	for i := range routes {
		if len(scores[i]) == 0 {
			continue
		}
		agg := aggregate(r.aggregation, scores[i])
		if agg > bestScore {
			best, bestScore = i, agg
		}
	}

	if best < 0 {
		return Result{}
	}

	threshold := routes[best].Threshold
	if threshold == 0 {
		threshold = r.threshold
	}

	if maxOf(scores[best]) < threshold {
		return Result{Score: bestScore}
	}

	return Result{
		RouteName: routes[best].Name,
		Score:     bestScore,
		Matched:   true,
	}
}

func aggregate(a Aggregation, scores []float64) float64 {
	switch a {
	case AggregateSum:
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum
	case AggregateMax:
		return maxOf(scores)
	default:
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}
}

func maxOf(scores []float64) float64 {
	m := math.Inf(-1)
	for _, s := range scores {
		if s > m {
			m = s
		}
	}
	return m
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot of two unit vectors is their cosine similarity. Mismatched
// dimensions score as unrelated.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
