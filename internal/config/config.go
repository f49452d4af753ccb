package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	ProviderLocal = "local"
	ProviderAzure = "azure"
)

type Config struct {
	HTTPPort       string
	DatabaseURL    string
	JWTSecret      string
	FrontendOrigin string
	LogLevel       string

	OpenAIAPIKey   string
	OpenAIBaseURL  string // empty = api.openai.com
	ChatModel      string
	EmbeddingModel string

	// SearchProvider selects the grounding retriever: "local" ranks passages
	// ingested into sqlite, "azure" calls a hosted search index.
	SearchProvider       string
	SearchEndpoint       string
	SearchAPIKey         string
	SearchIndex          string
	SearchSemanticConfig string
	SearchResultCount    int

	DocsDir string
}

func Load() (*Config, error) {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", "docschat.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		FrontendOrigin: getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		SearchProvider:       getEnv("SEARCH_PROVIDER", ProviderLocal),
		SearchEndpoint:       getEnv("SEARCH_ENDPOINT", ""),
		SearchAPIKey:         getEnv("SEARCH_API_KEY", ""),
		SearchIndex:          getEnv("SEARCH_INDEX", ""),
		SearchSemanticConfig: getEnv("SEARCH_SEMANTIC_CONFIG", ""),
		SearchResultCount:    getEnvAsInt("SEARCH_RESULT_COUNT", 5),

		DocsDir: getEnv("DOCS_DIR", "docs"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	switch cfg.SearchProvider {
	case ProviderLocal:
	case ProviderAzure:
		if cfg.SearchEndpoint == "" || cfg.SearchAPIKey == "" || cfg.SearchIndex == "" {
			return nil, fmt.Errorf("SEARCH_ENDPOINT, SEARCH_API_KEY and SEARCH_INDEX are required when SEARCH_PROVIDER=azure")
		}
	default:
		return nil, fmt.Errorf("unknown SEARCH_PROVIDER %q (expected %q or %q)", cfg.SearchProvider, ProviderLocal, ProviderAzure)
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
