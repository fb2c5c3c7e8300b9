package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldQuestion  = "question"
	fieldAnswer    = "answer"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// FAQEntry is one question/answer pair with the embedding of its question.
type FAQEntry struct {
	ID        string
	Question  string
	Answer    string
	Embedding []float32
}

// Match is a search hit. Score is the L2 distance, lower is closer.
type Match struct {
	ID       string
	Question string
	Answer   string
	Score    float32
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// Ping checks that the server answers.
func (m *Client) Ping(ctx context.Context) error {
	_, err := m.HasCollection(ctx)
	return err
}

func (m *Client) CollectionName() string {
	return m.collectionName
}

func (m *Client) HasCollection(ctx context.Context) (bool, error) {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return has, nil
}

// EnsureCollection creates, indexes and loads the FAQ collection if it is
// missing. An existing collection is only loaded.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.HasCollection(ctx)
	if err != nil {
		return err
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.load(ctx)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "FAQ question embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.vectorDim),
				},
			},
			{
				Name:     fieldQuestion,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     fieldAnswer,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.load(ctx); err != nil {
		return err
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// DropCollection removes the FAQ collection if it exists.
func (m *Client) DropCollection(ctx context.Context) error {
	has, err := m.HasCollection(ctx)
	if err != nil || !has {
		return err
	}
	if err := m.client.DropCollection(ctx, m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	logger.Info("Collection dropped", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) load(ctx context.Context) error {
	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (m *Client) Insert(ctx context.Context, entries []FAQEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	questions := make([]string, len(entries))
	answers := make([]string, len(entries))

	for i, e := range entries {
		if len(e.Embedding) != m.vectorDim {
			return fmt.Errorf("entry %s: embedding has %d dimensions, collection expects %d", e.ID, len(e.Embedding), m.vectorDim)
		}
		ids[i] = e.ID
		embeddings[i] = e.Embedding
		questions[i] = e.Question
		answers[i] = e.Answer
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, m.vectorDim, embeddings),
		entity.NewColumnVarChar(fieldQuestion, questions),
		entity.NewColumnVarChar(fieldAnswer, answers),
	)
	if err != nil {
		return fmt.Errorf("failed to insert faq entries: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("FAQ entries inserted into vector DB", zap.Int("count", len(entries)))

	return nil
}

// Search returns up to topK entries closest to the vector, nearest first.
func (m *Client) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{fieldID, fieldQuestion, fieldAnswer},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding,
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, sr := range results {
		idCol := sr.Fields.GetColumn(fieldID)
		questionCol := sr.Fields.GetColumn(fieldQuestion)
		answerCol := sr.Fields.GetColumn(fieldAnswer)
		if idCol == nil || questionCol == nil || answerCol == nil {
			return nil, fmt.Errorf("search result is missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			id, err := idCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read id: %w", err)
			}
			question, err := questionCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read question: %w", err)
			}
			answer, err := answerCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read answer: %w", err)
			}

			matches = append(matches, Match{
				ID:       id,
				Question: question,
				Answer:   answer,
				Score:    sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// Count returns the number of entities in the collection.
func (m *Client) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	return parseRowCount(stats)
}

func parseRowCount(stats map[string]string) (int64, error) {
	raw, ok := stats["row_count"]
	if !ok {
		return 0, fmt.Errorf("collection statistics missing row_count")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", raw, err)
	}
	return n, nil
}
