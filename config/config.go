package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	JWTKey    string
	SaltRound int

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	TwelveDataApiUrl string
	TwelveDataApiKey string

	UpdateCronSpec   string // cron expression for the periodic price refresh
	UpdateBatchSize  int    // symbols per batch when staggering upstream calls
	UpdateBatchDelay int    // seconds of delay added per batch
	UpstreamTimeout  int    // seconds before an upstream fetch is abandoned
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:      getEnv("PORT", "3000"),
		JWTKey:    getEnv("JWT_SECRET_KEY", "defaultSecret"),
		SaltRound: getEnvInt("SALT_ROUND", 10),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stockpulse"),
		DBPort:     getEnv("DB_PORT", "5432"),

		TwelveDataApiUrl: getEnv("TWELVEDATA_API_URL", "https://api.twelvedata.com"),
		TwelveDataApiKey: getEnv("TWELVEDATA_API_KEY", ""),

		UpdateCronSpec:   getEnv("UPDATE_CRON_SPEC", "0 */12 * * *"),
		UpdateBatchSize:  getEnvInt("UPDATE_BATCH_SIZE", 8),
		UpdateBatchDelay: getEnvInt("UPDATE_BATCH_DELAY_SECONDS", 90),
		UpstreamTimeout:  getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 30),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.TwelveDataApiKey == "" {
		log.Println("Warning: TWELVEDATA_API_KEY is empty. Upstream price fetches will fail.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}
