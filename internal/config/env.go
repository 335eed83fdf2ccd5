package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	Port         string

	// Ingestion knobs.
	MaxSyncPages   int // hard ceiling for synchronous processing
	ChunkMaxTokens int
	OverlapTokens  int
	EmbedBatchSize int
	RenderQuality  int // JPEG quality for page images
	SignedURLTTL   int // seconds
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "openshelf-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		Port:         getEnv("PORT", "8080"),

		MaxSyncPages:   getEnvInt("MAX_SYNC_PAGES", 100),
		ChunkMaxTokens: getEnvInt("CHUNK_MAX_TOKENS", 500),
		OverlapTokens:  getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 16),
		RenderQuality:  getEnvInt("RENDER_QUALITY", 85),
		SignedURLTTL:   getEnvInt("SIGNED_URL_TTL", 900),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
