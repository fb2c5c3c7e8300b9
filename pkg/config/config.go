package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Router    RouterConfig
	Ingestion IngestionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxQueryLength       int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	IsDevelopment        bool
}

// LLMConfig describes the chat completion service. BaseURL lets the client
// talk to any OpenAI-compatible endpoint (Groq, vLLM, Ollama).
type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	CacheTTL  int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	TopK           int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RouterConfig struct {
	Threshold  float64
	TopK       int
	Thresholds map[string]float64
}

type IngestionConfig struct {
	FAQPath      string
	ProductPath  string
	IngestOnBoot bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from config.yaml (if present) and CHATBOT_*
// environment variables and validates it. An explicit path overrides the
// search locations.
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Read is Load without validation, for tools that only need part of the
// configuration (the SQLite path, say) and no LLM credentials.
func Read(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ecommerce-chatbot")
	}

	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Embeddings default to the completion provider's credentials.
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}

	return &config, nil
}

// Validate fails fast on configuration the chatbot cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.apiKey is required (CHATBOT_LLM_APIKEY)"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required (CHATBOT_LLM_MODEL)"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Router.Threshold < 0 || c.Router.Threshold > 1 {
		errs = append(errs, fmt.Errorf("router.threshold must be within [0,1], got %v", c.Router.Threshold))
	}
	if c.Milvus.TopK <= 0 {
		errs = append(errs, fmt.Errorf("milvus.topK must be positive, got %d", c.Milvus.TopK))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxQueryLength", 2000)
	v.SetDefault("server.maxRequestsPerMinute", 60)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.baseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.cacheTTL", 86400)

	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.apiKey", "")
	v.SetDefault("milvus.collectionName", "faq")
	v.SetDefault("milvus.topK", 2)

	v.SetDefault("sqlite.path", "./resources/ecommerce_data.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("router.threshold", 0.3)
	v.SetDefault("router.topK", 5)

	v.SetDefault("ingestion.faqPath", "./resources/faq_data.csv")
	v.SetDefault("ingestion.productPath", "./resources/ecommerce_data_final.csv")
	v.SetDefault("ingestion.ingestOnBoot", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
