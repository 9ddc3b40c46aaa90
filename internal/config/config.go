package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	CorpusPath       string
	CorpusTextColumn string
	CorpusWatch      bool
	IngestOnStartup  bool
	ChunkSize        int
	ChunkOverlap     int

	IndexBackend     string
	IndexPath        string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	EmbedBackend     string
	EmbedModel       string
	EmbedBatchSize   int
	EmbedConcurrency int

	LLMBackend           string
	HostedLLMBaseURL     string
	HostedLLMAPIKey      string
	HostedLLMModel       string
	HostedLLMTemperature float64
	HostedLLMMaxTokens   int

	OllamaURL      string
	OllamaGenModel string

	ClassifierBackend string
	ClassifierModel   string
	HFInferenceURL    string
	HFAPIToken        string

	GatewayLabels        []string
	GatewayBlockLabels   []string
	GatewayMinConfidence float64
	PromptTemplate       string

	RAGTopK    int
	RAGMaxTopK int

	ExternalCallTimeoutSeconds int
	RetryMaxAttempts           int
	BreakerEnabled             bool

	PostgresDSN string

	NATSURL                 string
	NATSIngestSubject       string
	NATSIndexSubject        string
	IngestJobTimeoutSeconds int

	RedisURL              string
	AnswerCacheTTLSeconds int

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMs int
	APIValidateRequests   bool

	WorkerMetricsPort string

	ConfigFile string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		CorpusPath:       mustEnv("CORPUS_PATH", "./processed/car_data.csv"),
		CorpusTextColumn: mustEnv("CORPUS_TEXT_COLUMN", "text"),
		CorpusWatch:      mustEnvBool("CORPUS_WATCH", false),
		IngestOnStartup:  mustEnvBool("INGEST_ON_STARTUP", false),
		ChunkSize:        mustEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap:     mustEnvInt("CHUNK_OVERLAP", 10),

		IndexBackend:     mustEnv("INDEX_BACKEND", "local"),
		IndexPath:        mustEnv("INDEX_PATH", "./data/index"),
		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "car_manuals"),

		EmbedBackend:     mustEnv("EMBED_BACKEND", "ollama"),
		EmbedModel:       mustEnv("EMBED_MODEL", "all-minilm"),
		EmbedBatchSize:   mustEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedConcurrency: mustEnvInt("EMBED_CONCURRENCY", 4),

		LLMBackend:           mustEnv("LLM_BACKEND", "hosted"),
		HostedLLMBaseURL:     mustEnv("HOSTED_LLM_BASE_URL", "https://api.anthropic.com/v1/"),
		HostedLLMAPIKey:      mustEnv("HOSTED_LLM_API_KEY", os.Getenv("ANTHROPIC_API_KEY")),
		HostedLLMModel:       mustEnv("HOSTED_LLM_MODEL", mustEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")),
		HostedLLMTemperature: mustEnvFloat("HOSTED_LLM_TEMPERATURE", 0),
		HostedLLMMaxTokens:   mustEnvInt("HOSTED_LLM_MAX_TOKENS", 512),

		OllamaURL:      mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel: mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),

		ClassifierBackend: mustEnv("CLASSIFIER_BACKEND", "huggingface"),
		ClassifierModel:   mustEnv("CLASSIFIER_MODEL", "facebook/bart-large-mnli"),
		HFInferenceURL:    mustEnv("HF_INFERENCE_URL", "https://api-inference.huggingface.co/models"),
		HFAPIToken:        mustEnv("HF_API_TOKEN", ""),

		GatewayLabels:        mustEnvList("GATEWAY_LABELS", []string{"car query", "irrelevant", "other"}),
		GatewayBlockLabels:   mustEnvList("GATEWAY_BLOCK_LABELS", []string{"irrelevant"}),
		GatewayMinConfidence: mustEnvFloat("GATEWAY_MIN_CONFIDENCE", 0),

		RAGTopK:    mustEnvInt("RAG_TOP_K", 3),
		RAGMaxTopK: mustEnvInt("RAG_MAX_TOP_K", 20),

		ExternalCallTimeoutSeconds: mustEnvInt("EXTERNAL_CALL_TIMEOUT_SECONDS", 60),
		RetryMaxAttempts:           mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BreakerEnabled:             mustEnvBool("BREAKER_ENABLED", true),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:                 mustEnv("NATS_URL", ""),
		NATSIngestSubject:       mustEnv("NATS_INGEST_SUBJECT", "assistant.ingest"),
		NATSIndexSubject:        mustEnv("NATS_INDEX_SUBJECT", "assistant.index.rebuilt"),
		IngestJobTimeoutSeconds: mustEnvInt("INGEST_JOB_TIMEOUT_SECONDS", 900),

		RedisURL:              mustEnv("REDIS_URL", ""),
		AnswerCacheTTLSeconds: mustEnvInt("ANSWER_CACHE_TTL_SECONDS", 600),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIBackpressureWaitMs: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),
		APIValidateRequests:   mustEnvBool("API_VALIDATE_REQUESTS", true),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),

		ConfigFile: mustEnv("ASSISTANT_CONFIG_FILE", ""),
	}
}

func (c Config) ExternalCallTimeout() time.Duration {
	if c.ExternalCallTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ExternalCallTimeoutSeconds) * time.Second
}

func (c Config) AnswerCacheTTL() time.Duration {
	return time.Duration(c.AnswerCacheTTLSeconds) * time.Second
}

func (c Config) IngestJobTimeout() time.Duration {
	if c.IngestJobTimeoutSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.IngestJobTimeoutSeconds) * time.Second
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out := make([]string, 0, 4)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
