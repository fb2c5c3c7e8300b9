package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommerce-chatbot/backend/internal/api/handlers"
	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/query"
	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
)

type fakeEngine struct {
	route  string
	chunks []string
	err    error
	midErr error
	asked  []string
}

func (f *fakeEngine) Ask(_ context.Context, req query.Request) (*query.Response, error) {
	f.asked = append(f.asked, req.Query)
	if f.err != nil {
		return nil, f.err
	}

	var stream llm.Stream = llm.StaticStream(f.chunks...)
	if f.midErr != nil {
		stream = &failingStream{inner: stream, err: f.midErr}
	}
	return &query.Response{ID: "q-1", Query: req.Query, Route: f.route, Score: 0.9, Stream: stream}, nil
}

type failingStream struct {
	inner llm.Stream
	err   error
}

func (s *failingStream) Recv() (string, error) {
	chunk, err := s.inner.Recv()
	if errors.Is(err, io.EOF) {
		return "", s.err
	}
	return chunk, err
}

func (s *failingStream) Close() error { return s.inner.Close() }

type fakeClassifier struct {
	result router.Result
	err    error
}

func (f *fakeClassifier) Route(context.Context, string) (router.Result, error) {
	return f.result, f.err
}

type fakeReadiness struct{ ready bool }

func (f fakeReadiness) Ready() bool { return f.ready }

type fakeHistory struct {
	records []models.ChatRecord
	limit   int
}

func (f *fakeHistory) GetChatHistory(_ context.Context, limit int) ([]models.ChatRecord, error) {
	f.limit = limit
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func newTestApp(t *testing.T, deps Deps) *fiber.App {
	t.Helper()

	if deps.Engine == nil {
		deps.Engine = &fakeEngine{route: router.RouteSmallTalk, chunks: []string{"hi"}}
	}
	if deps.Classifier == nil {
		deps.Classifier = &fakeClassifier{}
	}
	if deps.Router == nil {
		deps.Router = fakeReadiness{ready: true}
	}
	if deps.History == nil {
		deps.History = &fakeHistory{}
	}

	app, cleanup := NewApp(Config{MaxQueryLength: 200, MaxRequestsPerMinute: 1000, IsDevelopment: true}, deps)
	t.Cleanup(cleanup)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestChat_StreamsServerSentEvents(t *testing.T) {
	engine := &fakeEngine{route: router.RouteSQL, chunks: []string{"1. Puma Runner", "\n2. Puma Flyer"}}
	app := newTestApp(t, Deps{Engine: engine})

	resp, body := postJSON(t, app, "/api/v1/chat", `{"query":"  Are there any Puma shoes on sale?  "}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	assert.Equal(t, []string{"Are there any Puma shoes on sale?"}, engine.asked)

	want := "event: route\ndata: {\"id\":\"q-1\",\"route\":\"sql\",\"score\":0.9}\n\n" +
		"event: chunk\ndata: {\"content\":\"1. Puma Runner\"}\n\n" +
		"event: chunk\ndata: {\"content\":\"\\n2. Puma Flyer\"}\n\n" +
		"event: done\ndata: {\"id\":\"q-1\"}\n\n"
	assert.Equal(t, want, body)
}

func TestChat_StreamFailureEmitsErrorEvent(t *testing.T) {
	engine := &fakeEngine{route: router.RouteFAQ, chunks: []string{"partial"}, midErr: llm.ErrUpstreamServiceFailure}
	app := newTestApp(t, Deps{Engine: engine})

	_, body := postJSON(t, app, "/api/v1/chat", `{"query":"return policy"}`)
	assert.Contains(t, body, "event: chunk\ndata: {\"content\":\"partial\"}")
	assert.Contains(t, body, "event: error\n")
	assert.NotContains(t, body, "event: done")
}

func TestChat_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"router not ready", router.ErrIndexNotReady, http.StatusServiceUnavailable},
		{"upstream", llm.ErrUpstreamServiceFailure, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, Deps{Engine: &fakeEngine{err: tt.err}})
			resp, body := postJSON(t, app, "/api/v1/chat", `{"query":"hello"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body, "Failed to process query")
		})
	}
}

func TestChat_RejectsEmptyQuery(t *testing.T) {
	engine := &fakeEngine{}
	app := newTestApp(t, Deps{Engine: engine})

	resp, _ := postJSON(t, app, "/api/v1/chat", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, engine.asked)
}

func TestRoute(t *testing.T) {
	app := newTestApp(t, Deps{Classifier: &fakeClassifier{
		result: router.Result{RouteName: router.RouteFAQ, Score: 0.82, Matched: true},
	}})

	resp, body := postJSON(t, app, "/api/v1/route", `{"query":"What is your return policy?"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "faq", got["route"])
	assert.Equal(t, true, got["matched"])

	app = newTestApp(t, Deps{Classifier: &fakeClassifier{result: router.Result{Score: 0.1}}})
	_, body = postJSON(t, app, "/api/v1/route", `{"query":"quantum physics"}`)
	assert.Contains(t, body, `"route":"unknown"`)
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{records: []models.ChatRecord{
		{ID: "2", Query: "Hello", Route: "small_talk", Response: "Hi!", CreatedAt: time.Unix(200, 0)},
		{ID: "1", Query: "Return policy?", Route: "faq", Response: "30 days", CreatedAt: time.Unix(100, 0)},
	}}
	app := newTestApp(t, Deps{History: history})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?limit=500", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 100, history.limit, "limit is capped")

	var body struct {
		History []map[string]any `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.History, 2)
	assert.Equal(t, "Hello", body.History[0]["query"])
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t, Deps{Router: fakeReadiness{ready: true}, Dependencies: map[string]handlers.Pinger{
		"sqlite": pingFunc(func(context.Context) error { return nil }),
	}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	notReady := newTestApp(t, Deps{Router: fakeReadiness{ready: false}, Dependencies: map[string]handlers.Pinger{
		"milvus": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}})

	resp, err = notReady.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index not built")
	assert.Contains(t, string(data), "connection refused")
}

func TestWebSocket_StreamsAnswer(t *testing.T) {
	engine := &fakeEngine{route: router.RouteSmallTalk, chunks: []string{"Hello!", " How can I help?"}}
	app := newTestApp(t, Deps{Engine: engine})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "query", "content": "Hello"}))

	var types []string
	var text strings.Builder
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))

		kind, _ := msg["type"].(string)
		types = append(types, kind)
		if kind == "chunk" {
			text.WriteString(msg["content"].(string))
		}
		if kind == "complete" || kind == "error" {
			break
		}
	}

	assert.Equal(t, []string{"route", "chunk", "chunk", "complete"}, types)
	assert.Equal(t, "Hello! How can I help?", text.String())
	assert.Equal(t, []string{"Hello"}, engine.asked)
}

func TestWebSocket_RejectsInvalidQueries(t *testing.T) {
	engine := &fakeEngine{route: router.RouteSmallTalk, chunks: []string{"Hi!"}}
	app := newTestApp(t, Deps{Engine: engine})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	defer app.Shutdown()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "query", "content": strings.Repeat("a", 201)}))
	msg := readMessage()
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Query exceeds maximum length", msg["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "query", "content": "<script>alert(1)</script>"}))
	msg = readMessage()
	assert.Equal(t, "Invalid query content", msg["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "query", "content": "  Hello\u0000 "}))
	assert.Equal(t, "route", readMessage()["type"])

	assert.Equal(t, []string{"Hello"}, engine.asked, "rejected queries never reach the engine")
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := newTestApp(t, Deps{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, Deps{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
