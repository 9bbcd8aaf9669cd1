// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEY    string
	MODEL_NAME        string // model used for the initial extraction pass
	VERIFY_MODEL_NAME string // model used for the gap verification pass

	// Gemini Pricing Configuration (per 1M tokens in USD)
	EXTRACTION_INPUT_PRICE_PER_MILLION  float64
	EXTRACTION_OUTPUT_PRICE_PER_MILLION float64
	VERIFY_INPUT_PRICE_PER_MILLION      float64
	VERIFY_OUTPUT_PRICE_PER_MILLION     float64
	USD_TO_THB                          float64

	// Server Configuration
	PORT            string
	UPLOAD_DIR      string
	ALLOWED_ORIGINS string

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int

	// Chunking settings for long receipts
	CHUNKING_MIN_ITEMS    int     // estimated item count at which chunking kicks in
	CHUNK_TARGET_ITEMS    int     // target number of items per chunk
	CHUNK_OVERLAP_PERCENT float64 // overlap between adjacent chunks, as % of chunk span

	// Timeouts (seconds)
	EXTRACTION_TIMEOUT int // overall budget for the extraction pass
	VERIFY_TIMEOUT     int // budget for the optional verification pass

	// Gap confidence levels assigned by the price-delta heuristic
	GAP_CONFIDENCE_HIGH   = "high"   // small price delta, plausible missing item
	GAP_CONFIDENCE_MEDIUM = "medium" // mid-range delta, uncertain
	GAP_CONFIDENCE_LOW    = "low"    // large delta, likely a section break
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Required: Gemini API Key
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	if GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	// Optional with defaults
	MODEL_NAME = getEnv("MODEL_NAME", "gemini-2.5-flash")
	VERIFY_MODEL_NAME = getEnv("VERIFY_MODEL_NAME", MODEL_NAME)

	// Gemini Pricing (default to Flash pricing)
	EXTRACTION_INPUT_PRICE_PER_MILLION = getEnvFloat("EXTRACTION_INPUT_PRICE_PER_MILLION", 0.30)
	EXTRACTION_OUTPUT_PRICE_PER_MILLION = getEnvFloat("EXTRACTION_OUTPUT_PRICE_PER_MILLION", 2.50)
	VERIFY_INPUT_PRICE_PER_MILLION = getEnvFloat("VERIFY_INPUT_PRICE_PER_MILLION", 0.30)
	VERIFY_OUTPUT_PRICE_PER_MILLION = getEnvFloat("VERIFY_OUTPUT_PRICE_PER_MILLION", 2.50)
	USD_TO_THB = getEnvFloat("USD_TO_THB", 36.0)

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	// MongoDB Configuration
	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "receiptdb")

	// Image Processing
	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2500)

	// Chunking
	CHUNKING_MIN_ITEMS = getEnvInt("CHUNKING_MIN_ITEMS", 10)
	CHUNK_TARGET_ITEMS = getEnvInt("CHUNK_TARGET_ITEMS", 10)
	CHUNK_OVERLAP_PERCENT = getEnvFloat("CHUNK_OVERLAP_PERCENT", 20.0)

	// Timeouts
	EXTRACTION_TIMEOUT = getEnvInt("EXTRACTION_TIMEOUT", 90) // covers all chunk calls
	VERIFY_TIMEOUT = getEnvInt("VERIFY_TIMEOUT", 45)

	log.Println("✓ Configuration loaded successfully")
}

// Helper functions
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
