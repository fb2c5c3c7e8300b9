package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/storage/models"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

var ErrReadOnly = errors.New("store opened read-only")

type Client struct {
	db       *sql.DB
	readOnly bool
}

// NewClient opens the database for reading and writing, creating the file
// and its directory when missing.
func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewReadOnlyClient opens an existing database so that no statement run
// through it can modify data.
func NewReadOnlyClient(dbPath string) (*Client, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_query_only=1&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("SQLite read-only client initialized", zap.String("path", dbPath))

	return &Client{db: db, readOnly: true}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	if c.readOnly {
		return ErrReadOnly
	}

	schema := `
	CREATE TABLE IF NOT EXISTS product (
		product_link TEXT,
		title TEXT,
		brand TEXT,
		price INTEGER,
		discount FLOAT,
		avg_rating FLOAT,
		total_ratings INTEGER
	);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		route TEXT NOT NULL,
		response TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_history(created_at);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertProducts appends products in a single transaction.
func (c *Client) InsertProducts(ctx context.Context, products []models.Product) (int, error) {
	if c.readOnly {
		return 0, ErrReadOnly
	}
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO product (product_link, title, brand, price, discount, avg_rating, total_ratings)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range products {
		_, err := stmt.ExecContext(ctx,
			p.ProductLink,
			p.Title,
			p.Brand,
			p.Price,
			p.Discount,
			p.AvgRating,
			p.TotalRatings,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert product %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit products: %w", err)
	}

	logger.Info("Products inserted", zap.Int("count", len(products)))

	return len(products), nil
}

func (c *Client) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// QueryRows runs a query and returns at most limit rows. A limit of zero or
// less returns every row.
func (c *Client) QueryRows(ctx context.Context, query string, limit int) ([]models.Row, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []models.Row
	for rows.Next() {
		if limit > 0 && len(result) >= limit {
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result = append(result, models.Row{Columns: columns, Values: values})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	logger.Debug("Query executed",
		zap.String("query", query),
		zap.Int("rows", len(result)),
	)

	return result, nil
}

func (c *Client) InsertChatRecord(ctx context.Context, record *models.ChatRecord) error {
	if c.readOnly {
		return ErrReadOnly
	}

	query := `
		INSERT INTO chat_history (id, query_text, route, response, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.Query,
		record.Route,
		record.Response,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}

	logger.Debug("Chat recorded",
		zap.String("query_id", record.ID),
		zap.String("route", record.Route),
	)

	return nil
}

// GetChatHistory returns the most recent chat records, newest first.
func (c *Client) GetChatHistory(ctx context.Context, limit int) ([]models.ChatRecord, error) {
	query := `
		SELECT id, query_text, route, response, latency_ms, created_at
		FROM chat_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	records := make([]models.ChatRecord, 0, limit)
	for rows.Next() {
		var r models.ChatRecord
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.Query, &r.Route, &r.Response, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
