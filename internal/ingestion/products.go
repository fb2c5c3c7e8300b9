package ingestion

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

var productColumns = []string{
	"product_link", "title", "brand", "price", "discount", "avg_rating", "total_ratings",
}

type ProductStore interface {
	InitSchema(ctx context.Context) error
	InsertProducts(ctx context.Context, products []models.Product) (int, error)
}

type ProductLoader struct {
	store ProductStore
}

func NewProductLoader(store ProductStore) *ProductLoader {
	return &ProductLoader{store: store}
}

// Load appends every product in the CSV to the product table, creating the
// table first if needed. Running it twice loads the rows twice.
func (l *ProductLoader) Load(ctx context.Context, csvPath string) (int, error) {
	products, err := readProductFile(csvPath)
	if err != nil {
		return 0, err
	}

	if err := l.store.InitSchema(ctx); err != nil {
		return 0, err
	}

	n, err := l.store.InsertProducts(ctx, products)
	if err != nil {
		return 0, err
	}

	metrics.RecordsIngested.WithLabelValues("product").Add(float64(n))
	logger.Info("Products loaded", zap.Int("count", n), zap.String("file", csvPath))

	return n, nil
}

func readProductFile(path string) ([]models.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open product file: %w", err)
	}
	defer f.Close()

	table, err := readCSV(f, productColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	products := make([]models.Product, 0, len(table.rows))
	for n, row := range table.rows {
		p, err := parseProduct(table, row)
		if err != nil {
			// Header is line 1.
			return nil, fmt.Errorf("%s line %d: %w", path, n+2, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func parseProduct(t *csvTable, row []string) (models.Product, error) {
	price, err := parseNumber(t.get(row, "price"))
	if err != nil {
		return models.Product{}, fmt.Errorf("price: %w", err)
	}
	discount, err := parseNumber(t.get(row, "discount"))
	if err != nil {
		return models.Product{}, fmt.Errorf("discount: %w", err)
	}
	rating, err := parseNumber(t.get(row, "avg_rating"))
	if err != nil {
		return models.Product{}, fmt.Errorf("avg_rating: %w", err)
	}
	total, err := parseNumber(t.get(row, "total_ratings"))
	if err != nil {
		return models.Product{}, fmt.Errorf("total_ratings: %w", err)
	}

	return models.Product{
		ProductLink:  t.get(row, "product_link"),
		Title:        t.get(row, "title"),
		Brand:        t.get(row, "brand"),
		Price:        int(price),
		Discount:     discount,
		AvgRating:    rating,
		TotalRatings: int(total),
	}, nil
}

// parseNumber accepts integers and floats ("1104", "1104.0"). Empty cells
// are zero.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
