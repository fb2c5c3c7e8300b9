package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecommerce-chatbot/backend/internal/ingestion"
)

var (
	scrapeInput   string
	scrapeOutput  string
	scrapeBaseURL string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract products from saved listing pages into a CSV",
	Long: `Parses every .html file in the input directory as a product listing page
and writes the products in the CSV format load-products reads.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeInput, "input", "i", "", "directory of saved listing pages (required)")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "out", "o", "ecommerce_data_final.csv", "CSV file to write")
	scrapeCmd.Flags().StringVar(&scrapeBaseURL, "base-url", "", "site URL that relative product links are resolved against")
	scrapeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	scraper, err := ingestion.NewScraper(scrapeBaseURL, ingestion.DefaultSelectors())
	if err != nil {
		return err
	}

	products, err := scraper.ScrapeDir(scrapeInput)
	if err != nil {
		return err
	}

	f, err := os.Create(scrapeOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", scrapeOutput, err)
	}
	defer f.Close()

	if err := ingestion.WriteCSV(f, products); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", scrapeOutput, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d products to %s\n", len(products), scrapeOutput)
	return nil
}
