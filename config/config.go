package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type EmbeddingConfig struct {
	Provider string
	Model    string
	// Dimension is fixed for the lifetime of an index. A mismatch between the
	// model output and this value is treated as a hard error.
	Dimension int
	// MaxInputChars bounds the text accepted by the embedder. Oversized input
	// is rejected, never truncated.
	MaxInputChars int
}

type LLMConfig struct {
	Provider string
	Model    string
}

// Settings holds the caller-tunable knobs of the answering pipeline. All
// fields are bounded; Validate rejects out-of-range values before they enter
// the pipeline.
type Settings struct {
	MaxResults         int
	Temperature        float64
	MaxResponseTokens  int
	RelevanceThreshold float64
	ConversationWindow int
	ChunkSize          int
	ChunkOverlap       int
	Oversampling       int
	SessionTTL         time.Duration
}

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	ListenAddr string
	DropDir    string

	Embeddings EmbeddingConfig
	LLM        LLMConfig
	Pipeline   Settings
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/newsrag?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		DropDir:    getEnv("DROP_DIR", ""),

		Embeddings: EmbeddingConfig{
			Provider:      getEnv("EMBEDDING_PROVIDER", ProviderOllama),
			Model:         getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension:     getEnvInt("EMBEDDING_DIMENSION", 768),
			MaxInputChars: getEnvInt("EMBEDDING_MAX_INPUT_CHARS", 8000),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.1"),
		},
		Pipeline: DefaultSettings().withEnv(),
	}
}

func DefaultSettings() Settings {
	return Settings{
		MaxResults:         5,
		Temperature:        0.3,
		MaxResponseTokens:  500,
		RelevanceThreshold: 0.1,
		ConversationWindow: 5,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		Oversampling:       3,
		SessionTTL:         24 * time.Hour,
	}
}

func (s Settings) withEnv() Settings {
	s.MaxResults = getEnvInt("MAX_RESULTS", s.MaxResults)
	s.Temperature = getEnvFloat("TEMPERATURE", s.Temperature)
	s.MaxResponseTokens = getEnvInt("MAX_RESPONSE_TOKENS", s.MaxResponseTokens)
	s.RelevanceThreshold = getEnvFloat("RELEVANCE_SCORE_THRESHOLD", s.RelevanceThreshold)
	s.ConversationWindow = getEnvInt("CONVERSATION_WINDOW_SIZE", s.ConversationWindow)
	s.ChunkSize = getEnvInt("CHUNK_SIZE", s.ChunkSize)
	s.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", s.ChunkOverlap)
	s.Oversampling = getEnvInt("OVERSAMPLING_FACTOR", s.Oversampling)
	if ttl := getEnvInt("SESSION_TTL_HOURS", 0); ttl > 0 {
		s.SessionTTL = time.Duration(ttl) * time.Hour
	}
	return s
}

func (s Settings) Validate() error {
	if s.MaxResults < 1 || s.MaxResults > 10 {
		return fmt.Errorf("max results must be in [1,10], got %d", s.MaxResults)
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature must be in [0,1], got %g", s.Temperature)
	}
	if s.MaxResponseTokens < 1 {
		return fmt.Errorf("max response tokens must be positive, got %d", s.MaxResponseTokens)
	}
	if s.RelevanceThreshold < 0 || s.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance threshold must be in [0,1], got %g", s.RelevanceThreshold)
	}
	if s.ConversationWindow < 1 {
		return fmt.Errorf("conversation window must be positive, got %d", s.ConversationWindow)
	}
	if s.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0,%d), got %d", s.ChunkSize, s.ChunkOverlap)
	}
	if s.Oversampling < 1 {
		return fmt.Errorf("oversampling factor must be positive, got %d", s.Oversampling)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
