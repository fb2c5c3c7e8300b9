package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/internal/router/routertest"
)

func buildRouter(t *testing.T) *router.Router {
	t.Helper()
	r := router.New(routertest.NewKeywordEmbedder())
	require.NoError(t, r.Add(router.DefaultRoutes()...))
	require.NoError(t, r.Build(context.Background()))
	return r
}

func TestEvaluateRoutes_SelfConsistent(t *testing.T) {
	e := NewEvaluator(buildRouter(t))

	report, err := e.EvaluateRoutes(context.Background(), router.DefaultRoutes())
	require.NoError(t, err)

	assert.Equal(t, 30, report.TotalQueries)
	assert.Equal(t, 30, report.CorrectCount)
	assert.Equal(t, 1.0, report.Accuracy)
	assert.Empty(t, report.Mismatches)
	assert.Equal(t, 1.0, report.PerRoute[router.RouteSQL].Accuracy())
}

func TestEvaluateDataset_ReportsMismatches(t *testing.T) {
	e := NewEvaluator(buildRouter(t))

	report, err := e.EvaluateDataset(context.Background(), EvaluationDataset{Items: []DatasetItem{
		{Query: "Are there any Puma shoes on sale?", Expected: router.RouteSQL},
		{Query: "What is your return policy?", Expected: router.RouteFAQ},
		{Query: "Hello", Expected: router.RouteFAQ},
		{Query: "Quantum chromodynamics", Expected: unmatchedLabel},
	}})
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQueries)
	assert.Equal(t, 3, report.CorrectCount)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-9)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "Hello", report.Mismatches[0].Query)
	assert.Equal(t, router.RouteSmallTalk, report.Mismatches[0].Got)
	assert.Equal(t, RouteStats{Total: 2, Correct: 1}, report.PerRoute[router.RouteFAQ])
}

func TestEvaluateDataset_RouterNotReady(t *testing.T) {
	e := NewEvaluator(router.New(routertest.NewKeywordEmbedder()))

	_, err := e.EvaluateDataset(context.Background(), EvaluationDataset{Items: []DatasetItem{{Query: "Hello"}}})
	assert.ErrorIs(t, err, router.ErrIndexNotReady)
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[{"query":"Hello","expected":"small_talk"}]}`), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, []DatasetItem{{Query: "Hello", Expected: "small_talk"}}, ds.Items)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
