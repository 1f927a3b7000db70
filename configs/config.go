// config.go - Configuration loaded from environment variables
package configs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LLMConfig holds the settings for the TextCompleter capability.
type LLMConfig struct {
	Provider    string // "gemini" or "mistral"
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds
}

// OCRConfig holds the settings for the OCRReader capability.
type OCRConfig struct {
	Provider   string
	APIKey     string
	Endpoint   string
	Timeout    int // seconds
	MaxRetries int
	RetryDelay int // seconds
}

// Config is the fully loaded, validated configuration for one process.
type Config struct {
	LLM LLMConfig
	OCR OCRConfig

	Port           string
	CORSOrigins    []string
	UploadDir      string
	MaxUploadBytes int64
	AllowedExt     []string

	DatabaseURL string

	PDFDPI           int
	CleanupTempFiles bool

	PIIMaskChar  string
	PIIShowLast  int

	ConfidenceThreshold float64
	HeuristicWeight     float64
	ModelWeight         float64

	WorkerCount int
}

// Load reads configuration from the environment (and a local .env file, if
// present) and validates the required keys. It fails fast, mirroring the
// teacher's own startup behavior, rather than deferring to first use.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := &Config{
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "gemini"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gemini-2.5-flash"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8192),
			Timeout:     getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		},
		OCR: OCRConfig{
			Provider:   getEnv("OCR_PROVIDER", "gemini"),
			APIKey:     getEnv("OCR_API_KEY", getEnv("LLM_API_KEY", "")),
			Endpoint:   getEnv("OCR_ENDPOINT", ""),
			Timeout:    getEnvInt("OCR_TIMEOUT_SECONDS", 45),
			MaxRetries: getEnvInt("OCR_MAX_RETRIES", 3),
			RetryDelay: getEnvInt("OCR_RETRY_DELAY_SECONDS", 1),
		},
		Port:                getEnv("PORT", "8080"),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "*")),
		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		AllowedExt:          splitCSV(getEnv("ALLOWED_EXTENSIONS", ".pdf")),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		PDFDPI:              getEnvInt("PDF_DPI", 300),
		CleanupTempFiles:    getEnvBool("CLEANUP_TEMP_FILES", true),
		PIIMaskChar:         getEnv("PII_MASK_CHAR", "X"),
		PIIShowLast:         getEnvInt("PII_SHOW_LAST", 4),
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.70),
		HeuristicWeight:     getEnvFloat("CONFIDENCE_HEURISTIC_WEIGHT", 0.6),
		ModelWeight:         getEnvFloat("CONFIDENCE_MODEL_WEIGHT", 0.4),
		WorkerCount:         getEnvInt("WORKER_COUNT", 4),
	}

	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("configs: LLM_API_KEY environment variable is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("configs: DATABASE_URL environment variable is required")
	}

	w := cfg.HeuristicWeight + cfg.ModelWeight
	if w <= 0 {
		cfg.HeuristicWeight, cfg.ModelWeight = 0.6, 0.4
	} else if w != 1 {
		cfg.HeuristicWeight /= w
		cfg.ModelWeight /= w
	}

	log.Println("configuration loaded successfully")
	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
