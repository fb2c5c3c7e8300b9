package ingestion

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/embedding"
	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/internal/vector/milvus"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

type FAQStore interface {
	HasCollection(ctx context.Context) (bool, error)
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, entries []milvus.FAQEntry) error
	DropCollection(ctx context.Context) error
}

type FAQIngester struct {
	store    FAQStore
	embedder embedding.Embedder
}

func NewFAQIngester(store FAQStore, embedder embedding.Embedder) *FAQIngester {
	return &FAQIngester{store: store, embedder: embedder}
}

// Ingest loads question/answer pairs into the vector store, embedding the
// questions. A store that already has the collection is left untouched and
// zero is returned. A failed insert drops the collection again so the next
// run starts over.
func (i *FAQIngester) Ingest(ctx context.Context, csvPath string) (int, error) {
	exists, err := i.store.HasCollection(ctx)
	if err != nil {
		return 0, err
	}
	if exists {
		logger.Info("FAQ collection already exists, skipping ingestion", zap.String("file", csvPath))
		return 0, nil
	}

	records, err := readFAQFile(csvPath)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no FAQ entries in %s", csvPath)
	}

	questions := make([]string, len(records))
	for n, r := range records {
		questions[n] = r.Question
	}

	vectors, err := i.embedder.Embed(ctx, questions)
	if err != nil {
		return 0, fmt.Errorf("failed to embed FAQ questions: %w", err)
	}
	if len(vectors) != len(records) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(records))
	}
	for n, v := range vectors {
		if len(v) != len(vectors[0]) {
			return 0, fmt.Errorf("entry %s: embedding has %d dimensions, first entry has %d", records[n].ID, len(v), len(vectors[0]))
		}
	}

	entries := make([]milvus.FAQEntry, len(records))
	for n, r := range records {
		entries[n] = milvus.FAQEntry{
			ID:        r.ID,
			Question:  r.Question,
			Answer:    r.Answer,
			Embedding: vectors[n],
		}
	}

	if err := i.store.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	if err := i.store.Insert(ctx, entries); err != nil {
		if dropErr := i.store.DropCollection(ctx); dropErr != nil {
			logger.Error("Failed to drop collection after failed insert", zap.Error(dropErr))
		}
		return 0, err
	}

	metrics.RecordsIngested.WithLabelValues("faq").Add(float64(len(entries)))
	logger.Info("FAQ data ingested", zap.Int("count", len(entries)), zap.String("file", csvPath))

	return len(entries), nil
}

func readFAQFile(path string) ([]models.FAQRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FAQ file: %w", err)
	}
	defer f.Close()

	table, err := readCSV(f, "question", "answer")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	records := make([]models.FAQRecord, 0, len(table.rows))
	// ids follow the CSV row index, so skipped rows leave gaps.
	for n, row := range table.rows {
		q := table.get(row, "question")
		if q == "" {
			continue
		}
		records = append(records, models.FAQRecord{
			ID:       fmt.Sprintf("id_%d", n),
			Question: q,
			Answer:   table.get(row, "answer"),
		})
	}
	return records, nil
}
