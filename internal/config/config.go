package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Files   FileConfig
	Extract ExtractConfig
	Parse   ParseConfig
	Queue   QueueConfig
}

type ServerConfig struct {
	Port string
}

type DBConfig struct {
	// Path to the SQLite database file.
	Path string
}

type FileConfig struct {
	// UploadDir is where uploaded PDFs land when no GCS bucket is set.
	UploadDir string
	// GCSBucket, when non-empty, switches the file store to GCS.
	GCSBucket string
	// MaxUploadBytes caps accepted PDF uploads.
	MaxUploadBytes int64
}

type ExtractConfig struct {
	// OCRModel is the vision model used for image-based extraction.
	OCRModel string
	Timeout  time.Duration
}

type ParseConfig struct {
	// Model is the language model used for transaction extraction.
	Model   string
	Timeout time.Duration
}

type QueueConfig struct {
	BufferSize  int
	WorkerCount int
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", "./data/statements.db"),
		},
		Files: FileConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
			GCSBucket:      getEnv("GCS_BUCKET", ""),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Extract: ExtractConfig{
			OCRModel: getEnv("OCR_MODEL", "gemini-2.5-flash"),
			Timeout:  time.Duration(getEnvAsInt("EXTRACT_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Parse: ParseConfig{
			Model:   getEnv("PARSE_MODEL", "gemini-2.5-flash"),
			Timeout: time.Duration(getEnvAsInt("PARSE_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Queue: QueueConfig{
			BufferSize:  getEnvAsInt("QUEUE_BUFFER", 100),
			WorkerCount: getEnvAsInt("WORKER_COUNT", 5),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
