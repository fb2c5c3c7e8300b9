package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecommerce-chatbot/backend/internal/bootstrap"
	"github.com/ecommerce-chatbot/backend/internal/ingestion"
	"github.com/ecommerce-chatbot/backend/internal/storage/sqlite"
	"github.com/ecommerce-chatbot/backend/pkg/config"
)

var (
	faqFile     string
	productFile string
)

var ingestFAQCmd = &cobra.Command{
	Use:   "ingest-faq",
	Short: "Embed the FAQ CSV into the vector collection",
	Long: `Reads a CSV with question and answer columns, embeds every question and
stores the pairs in the FAQ collection. Does nothing if the collection
already exists.`,
	RunE: runIngestFAQ,
}

var loadProductsCmd = &cobra.Command{
	Use:   "load-products",
	Short: "Append the product CSV to the product table",
	Long: `Reads a CSV with product_link, title, brand, price, discount, avg_rating
and total_ratings columns and appends every row to the product table.
Running it twice inserts the rows twice.`,
	RunE: runLoadProducts,
}

func init() {
	ingestFAQCmd.Flags().StringVarP(&faqFile, "file", "f", "", "FAQ CSV (defaults to ingestion.faqPath)")
	loadProductsCmd.Flags().StringVarP(&productFile, "file", "f", "", "product CSV (defaults to ingestion.productPath)")

	rootCmd.AddCommand(ingestFAQCmd)
	rootCmd.AddCommand(loadProductsCmd)
}

func runIngestFAQ(cmd *cobra.Command, args []string) error {
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

	vectors, err := services.OpenVectors(ctx)
	if err != nil {
		return err
	}

	path := faqFile
	if path == "" {
		path = cfg.Ingestion.FAQPath
	}

	n, err := ingestion.NewFAQIngester(vectors, services.Embedder).Ingest(ctx, path)
	if err != nil {
		return err
	}

	if n == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Collection %q already exists, nothing ingested\n", vectors.CollectionName())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d FAQ entries into %q\n", n, vectors.CollectionName())
	return nil
}

func runLoadProducts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Read(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	path := productFile
	if path == "" {
		path = cfg.Ingestion.ProductPath
	}

	n, err := ingestion.NewProductLoader(store).Load(ctx, path)
	if err != nil {
		return err
	}

	total, err := store.CountProducts(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d products (%d in table) into %s\n", n, total, cfg.SQLite.Path)
	return nil
}
