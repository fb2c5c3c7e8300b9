package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/internal/metrics"
	"github.com/ecommerce-chatbot/backend/pkg/circuitbreaker"
	"github.com/ecommerce-chatbot/backend/pkg/logger"
	"github.com/ecommerce-chatbot/backend/pkg/retry"
)

// ErrUpstreamServiceFailure marks network, auth and API failures of the
// completion or embedding service.
var ErrUpstreamServiceFailure = errors.New("upstream service failure")

const embeddingBatchSize = 100

type Client struct {
	chat           *openai.Client
	embed          *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) *Client {
	chatConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		chatConfig.BaseURL = cfg.BaseURL
	}

	embedConfig := openai.DefaultConfig(cfg.EmbeddingAPIKey)
	if cfg.EmbeddingBaseURL != "" {
		embedConfig.BaseURL = cfg.EmbeddingBaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	// Rejected requests (bad prompt, auth) say nothing about upstream health.
	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   2,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled) && isRetryable(err)
		},
		Logger: logger.GetLogger(),
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		IsRetryable:    isRetryable,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.String("base_url", chatConfig.BaseURL),
	)

	return &Client{
		chat:           openai.NewClientWithConfig(chatConfig),
		embed:          openai.NewClientWithConfig(embedConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

func (c *Client) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.UserPrompt,
			},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Complete performs a blocking chat completion.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := c.buildRequest(req)

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.chat.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return errors.New("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})

	if err != nil {
		metrics.LLMRequests.WithLabelValues("completion", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstreamServiceFailure, err)
	}

	metrics.LLMRequests.WithLabelValues("completion", "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(result.Usage.CompletionTokens))

	return result, nil
}

// Stream starts a streaming chat completion. Only opening the stream goes
// through the circuit breaker; a stream that fails midway is not retried
// because chunks may already have been forwarded to the user.
func (c *Client) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	chatReq := c.buildRequest(req)
	chatReq.Stream = true

	var stream *openai.ChatCompletionStream

	err := c.cb.Execute(ctx, func() error {
		var err error
		stream, err = c.chat.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return fmt.Errorf("failed to open completion stream: %w", err)
		}
		return nil
	})

	if err != nil {
		cancel()
		metrics.LLMRequests.WithLabelValues("stream", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstreamServiceFailure, err)
	}

	logger.Debug("LLM stream opened", zap.String("model", c.model))

	return &openaiStream{
		stream: stream,
		cancel: cancel,
		onDone: func(err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.LLMRequests.WithLabelValues("stream", status).Inc()
		},
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := min(i+embeddingBatchSize, len(texts))
		batch := texts[i:end]

		var batchEmbeddings [][]float32

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.embed.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return fmt.Errorf("failed to generate embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}

				batchEmbeddings = make([][]float32, len(resp.Data))
				for _, data := range resp.Data {
					if data.Index < 0 || data.Index >= len(batch) {
						return fmt.Errorf("embedding index %d out of range", data.Index)
					}
					batchEmbeddings[data.Index] = data.Embedding
				}

				metrics.LLMTokensUsed.WithLabelValues(c.embeddingModel, "embedding").Add(float64(resp.Usage.TotalTokens))
				return nil
			})
		})

		if err != nil {
			metrics.LLMRequests.WithLabelValues("embedding", "error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrUpstreamServiceFailure, err)
		}

		metrics.LLMRequests.WithLabelValues("embedding", "ok").Inc()
		embeddings = append(embeddings, batchEmbeddings...)
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// isRetryable retries rate limiting and server-side failures; other API
// errors (bad request, auth) fail immediately.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}
