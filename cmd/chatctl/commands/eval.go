package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ecommerce-chatbot/backend/internal/bootstrap"
	"github.com/ecommerce-chatbot/backend/internal/evaluation"
	"github.com/ecommerce-chatbot/backend/internal/router"
)

var (
	evalDataset string
	evalJSON    bool
)

var evalRoutesCmd = &cobra.Command{
	Use:   "eval-routes",
	Short: "Measure how well the router classifies labelled queries",
	Long: `Routes every built-in utterance (or every query in a JSON dataset of
{"items":[{"query":...,"expected":...}]}) and reports accuracy per route
together with the queries that went elsewhere.`,
	RunE: runEvalRoutes,
}

func init() {
	evalRoutesCmd.Flags().StringVarP(&evalDataset, "dataset", "d", "", "JSON dataset (defaults to the built-in utterances)")
	evalRoutesCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")

	rootCmd.AddCommand(evalRoutesCmd)
}

func runEvalRoutes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	services := bootstrap.New(ctx, cfg)
	defer services.Close()

	r, err := services.BuildRouter(ctx)
	if err != nil {
		return err
	}

	evaluator := evaluation.NewEvaluator(r)

	var report *evaluation.EvaluationReport
	if evalDataset != "" {
		dataset, err := evaluation.LoadDataset(evalDataset)
		if err != nil {
			return err
		}
		report, err = evaluator.EvaluateDataset(ctx, dataset)
		if err != nil {
			return err
		}
	} else {
		report, err = evaluator.EvaluateRoutes(ctx, router.DefaultRoutes())
		if err != nil {
			return err
		}
	}

	if evalJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	return printReport(cmd, report)
}

func printReport(cmd *cobra.Command, report *evaluation.EvaluationReport) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Accuracy: %.2f%% (%d/%d)\n\n", report.Accuracy*100, report.CorrectCount, report.TotalQueries)

	names := make([]string, 0, len(report.PerRoute))
	for name := range report.PerRoute {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tCORRECT\tTOTAL\tACCURACY")
	for _, name := range names {
		stats := report.PerRoute[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", name, stats.Correct, stats.Total, stats.Accuracy()*100)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(report.Mismatches) == 0 {
		return nil
	}

	fmt.Fprintln(out, "\nMismatches:")
	for _, m := range report.Mismatches {
		fmt.Fprintf(out, "  %q expected %s, got %s (score %.3f)\n", m.Query, m.Expected, m.Got, m.Score)
	}
	return nil
}
