package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/router/routertest"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/internal/vector/milvus"
)

type stubFAQ struct{ calls int }

func (s *stubFAQ) AnswerFAQ(context.Context, string) (llm.Stream, error) {
	s.calls++
	return llm.StaticStream("faq answer"), nil
}

type stubStructured struct{ calls int }

func (s *stubStructured) AnswerStructured(context.Context, string) llm.Stream {
	s.calls++
	return llm.StaticStream("sql ", "answer")
}

type stubSmallTalk struct {
	calls int
	err   error
}

func (s *stubSmallTalk) Talk(context.Context, string) (llm.Stream, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return llm.StaticStream("hi!"), nil
}

func TestEngine_DispatchesByRoute(t *testing.T) {
	tests := []struct {
		result router.Result
		want   string
		text   string
	}{
		{router.Result{RouteName: router.RouteFAQ, Score: 0.8, Matched: true}, router.RouteFAQ, "faq answer"},
		{router.Result{RouteName: router.RouteSQL, Score: 0.7, Matched: true}, router.RouteSQL, "sql answer"},
		{router.Result{RouteName: router.RouteSmallTalk, Score: 0.9, Matched: true}, router.RouteSmallTalk, "hi!"},
		{router.Result{Score: 0.1}, RouteUnknown, "Route 'unknown' is not implemented."},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			faq, sql, talk := &stubFAQ{}, &stubStructured{}, &stubSmallTalk{}
			e := NewEngine(&fakeClassifier{result: tt.result}, Handlers{FAQ: faq, Structured: sql, SmallTalk: talk}, nil, nil)

			resp, err := e.Ask(context.Background(), Request{Query: "anything"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Route)
			assert.NotEmpty(t, resp.ID)

			text, err := llm.Collect(resp.Stream)
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)

			assert.Equal(t, 1, faq.calls+sql.calls+talk.calls+boolToInt(tt.want == RouteUnknown))
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestEngine_RecordsHistoryOnceStreamEnds(t *testing.T) {
	history := &fakeHistory{}
	counter := &fakeCounter{}
	e := NewEngine(
		&fakeClassifier{result: router.Result{RouteName: router.RouteSQL, Score: 0.7, Matched: true}},
		Handlers{Structured: &stubStructured{}},
		history,
		counter,
	)

	resp, err := e.Ask(context.Background(), Request{Query: "  puma shoes  "})
	require.NoError(t, err)
	assert.Empty(t, history.records, "nothing recorded before the stream is consumed")

	_, err = llm.Collect(resp.Stream)
	require.NoError(t, err)

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, resp.ID, rec.ID)
	assert.Equal(t, "puma shoes", rec.Query)
	assert.Equal(t, router.RouteSQL, rec.Route)
	assert.Equal(t, "sql answer", rec.Response)
	assert.Equal(t, []string{router.RouteSQL}, counter.routes)
}

func TestEngine_CloseBeforeDrainRecordsPartialText(t *testing.T) {
	history := &fakeHistory{}
	e := NewEngine(
		&fakeClassifier{result: router.Result{RouteName: router.RouteSQL, Matched: true}},
		Handlers{Structured: &stubStructured{}},
		history,
		nil,
	)

	resp, err := e.Ask(context.Background(), Request{Query: "puma"})
	require.NoError(t, err)

	chunk, err := resp.Stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "sql ", chunk)
	require.NoError(t, resp.Stream.Close())
	require.NoError(t, resp.Stream.Close())

	require.Len(t, history.records, 1)
	assert.Equal(t, "sql ", history.records[0].Response)
}

func TestEngine_Errors(t *testing.T) {
	e := NewEngine(&fakeClassifier{}, Handlers{}, nil, nil)
	_, err := e.Ask(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	e = NewEngine(&fakeClassifier{err: router.ErrIndexNotReady}, Handlers{}, nil, nil)
	_, err = e.Ask(context.Background(), Request{Query: "hello"})
	assert.ErrorIs(t, err, router.ErrIndexNotReady)

	upstream := errors.New("groq unavailable")
	e = NewEngine(
		&fakeClassifier{result: router.Result{RouteName: router.RouteSmallTalk, Matched: true}},
		Handlers{SmallTalk: &stubSmallTalk{err: upstream}},
		nil,
		nil,
	)
	_, err = e.Ask(context.Background(), Request{Query: "hello"})
	assert.ErrorIs(t, err, upstream)
}

// The full pipeline with the keyword embedder standing in for the
// embedding service.
func TestEngine_Scenarios(t *testing.T) {
	ctx := context.Background()
	emb := routertest.NewKeywordEmbedder()

	r := router.New(emb)
	require.NoError(t, r.Add(router.DefaultRoutes()...))
	require.NoError(t, r.Build(ctx))

	faqLLM := &fakeCompleter{chunks: []string{"Returns are accepted within 30 days."}}
	sqlLLM := &fakeCompleter{
		content: "<SQL>SELECT * FROM product WHERE brand LIKE '%puma%' AND discount > 0</SQL>",
		chunks:  []string{"1. Puma Runner: Rs. 2499 (40 percent off), Rating: 4.2 https://shop.example/puma"},
	}
	talkLLM := &fakeCompleter{chunks: []string{"Hello!", " How can I help?"}}

	handlers := Handlers{
		FAQ: NewFAQAnswerer(emb, &fakeSearcher{matches: []milvus.Match{
			{Answer: "Returns are accepted within 30 days of delivery."},
		}}, faqLLM, 2),
		Structured: NewStructuredAnswerer(sqlLLM, &fakeRows{rows: []models.Row{productRow("Puma Runner", 2499)}}),
		SmallTalk:  NewSmallTalker(talkLLM),
	}
	history := &fakeHistory{}
	e := NewEngine(r, handlers, history, nil)

	tests := []struct {
		query string
		route string
		text  string
	}{
		{"Are there any Puma shoes on sale?", router.RouteSQL, "1. Puma Runner: Rs. 2499 (40 percent off), Rating: 4.2 https://shop.example/puma"},
		{"What is your return policy?", router.RouteFAQ, "Returns are accepted within 30 days."},
		{"Hello", router.RouteSmallTalk, "Hello! How can I help?"},
	}

	for _, tt := range tests {
		resp, err := e.Ask(ctx, Request{Query: tt.query})
		require.NoError(t, err)
		assert.Equal(t, tt.route, resp.Route, tt.query)

		text, err := llm.Collect(resp.Stream)
		require.NoError(t, err)
		assert.Equal(t, tt.text, text)
	}

	assert.Len(t, history.records, 3)
}
