package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecommerce-chatbot/backend/internal/bootstrap"
	"github.com/ecommerce-chatbot/backend/internal/llm"
	"github.com/ecommerce-chatbot/backend/internal/query"
)

var showRoute bool

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask the chatbot a question and stream the answer",
	Long: `Routes the query and prints the answer as it streams in. Without an
argument, reads one query per line from stdin until EOF or "exit".`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showRoute, "show-route", false, "print the selected route before each answer")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	store, err := services.OpenStore(ctx)
	if err != nil {
		return err
	}
	products, err := services.OpenProducts()
	if err != nil {
		return err
	}
	vectors, err := services.OpenVectors(ctx)
	if err != nil {
		return err
	}
	if err := vectors.EnsureCollection(ctx); err != nil {
		return err
	}

	r, err := services.BuildRouter(ctx)
	if err != nil {
		return err
	}
	engine := services.NewEngine(r, vectors, products, store)

	if len(args) > 0 {
		return answer(ctx, cmd.OutOrStdout(), engine, strings.Join(args, " "))
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "Enter your query: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "exit") {
			return nil
		}

		if err := answer(ctx, out, engine, q); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func answer(ctx context.Context, out io.Writer, engine *query.Engine, q string) error {
	resp, err := engine.Ask(ctx, query.Request{Query: q})
	if err != nil {
		return err
	}
	defer resp.Stream.Close()

	if showRoute {
		fmt.Fprintf(out, "[%s %.3f]\n", resp.Route, resp.Score)
	}

	err = llm.Forward(resp.Stream, func(chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	})
	fmt.Fprintln(out)
	return err
}
