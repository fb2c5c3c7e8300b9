package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/router"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const unmatchedLabel = "unknown"

type Classifier interface {
	Route(ctx context.Context, query string) (router.Result, error)
}

type Evaluator struct {
	classifier Classifier
}

type EvaluationDataset struct {
	Items []DatasetItem `json:"items"`
}

// DatasetItem is a query labelled with the route it should take. Use
// "unknown" for queries no route should claim.
type DatasetItem struct {
	Query    string `json:"query"`
	Expected string `json:"expected"`
}

type RouteStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

func (s RouteStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

type Mismatch struct {
	Query    string  `json:"query"`
	Expected string  `json:"expected"`
	Got      string  `json:"got"`
	Score    float64 `json:"score"`
}

type EvaluationReport struct {
	TotalQueries int                   `json:"total_queries"`
	CorrectCount int                   `json:"correct_count"`
	Accuracy     float64               `json:"accuracy"`
	PerRoute     map[string]RouteStats `json:"per_route"`
	Mismatches   []Mismatch            `json:"mismatches"`
}

func NewEvaluator(classifier Classifier) *Evaluator {
	return &Evaluator{classifier: classifier}
}

// EvaluateRoutes routes every utterance of every route and reports how many
// land back on the route they belong to.
func (e *Evaluator) EvaluateRoutes(ctx context.Context, routes []router.Route) (*EvaluationReport, error) {
	var dataset EvaluationDataset
	for _, r := range routes {
		for _, u := range r.Utterances {
			dataset.Items = append(dataset.Items, DatasetItem{Query: u, Expected: r.Name})
		}
	}
	return e.EvaluateDataset(ctx, dataset)
}

func (e *Evaluator) EvaluateDataset(ctx context.Context, dataset EvaluationDataset) (*EvaluationReport, error) {
	report := &EvaluationReport{PerRoute: make(map[string]RouteStats)}

	for _, item := range dataset.Items {
		result, err := e.classifier.Route(ctx, item.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to route %q: %w", item.Query, err)
		}

		got := unmatchedLabel
		if result.Matched {
			got = result.RouteName
		}

		stats := report.PerRoute[item.Expected]
		stats.Total++
		report.TotalQueries++

		if got == item.Expected {
			stats.Correct++
			report.CorrectCount++
		} else {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Query:    item.Query,
				Expected: item.Expected,
				Got:      got,
				Score:    result.Score,
			})
		}
		report.PerRoute[item.Expected] = stats
	}

	if report.TotalQueries > 0 {
		report.Accuracy = float64(report.CorrectCount) / float64(report.TotalQueries)
	}

	logger.Info("Route evaluation complete",
		zap.Int("total", report.TotalQueries),
		zap.Int("correct", report.CorrectCount),
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("mismatches", len(report.Mismatches)),
	)

	return report, nil
}

func LoadDataset(path string) (EvaluationDataset, error) {
	var dataset EvaluationDataset

	data, err := os.ReadFile(path)
	if err != nil {
		return dataset, fmt.Errorf("failed to read dataset: %w", err)
	}
	if err := json.Unmarshal(data, &dataset); err != nil {
		return dataset, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return dataset, nil
}
