package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all process-wide settings. It is built once in Load and passed
// by reference; nothing re-reads the environment after startup.
type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Caller authentication
	ValidatorType    string // "jwk" or "firebase"
	JWTJWKSURL       string
	FirebaseCredJSON string

	// Firebase service account used for FCM delivery. Any of the three being
	// empty switches the service into simulation mode.
	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string

	// Delivery
	FCMBatchSize           int
	OutboundTimeoutSeconds int

	// Server
	ServerShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string

	// Static per-platform delivery hints attached to every message.
	DeliveryHints DeliveryHints `yaml:"delivery_hints"`
}

// DeliveryHints are the fixed platform-specific knobs sent with every
// notification. They are configuration constants, not computed per request.
type DeliveryHints struct {
	Android AndroidHints `yaml:"android"`
	APNS    APNSHints    `yaml:"apns"`
}

type AndroidHints struct {
	Priority  string `yaml:"priority"`
	Icon      string `yaml:"icon"`
	Color     string `yaml:"color"`
	Sound     string `yaml:"sound"`
	ChannelID string `yaml:"channel_id"`
}

type APNSHints struct {
	Priority string `yaml:"priority"`
	Sound    string `yaml:"sound"`
	Badge    int    `yaml:"badge"`
}

// DefaultDeliveryHints returns the hints used when no config file overrides them.
func DefaultDeliveryHints() DeliveryHints {
	return DeliveryHints{
		Android: AndroidHints{
			Priority:  "high",
			Icon:      "ic_notification",
			Color:     "#2196F3",
			Sound:     "default",
			ChannelID: "default",
		},
		APNS: APNSHints{
			Priority: "10",
			Sound:    "default",
			Badge:    1,
		},
	}
}

// Load builds the configuration from the environment (plus an optional .env
// file and an optional YAML config file for the delivery hints).
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Database
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "postgres://localhost/push_relay?sslmode=disable"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Validator
		ValidatorType:    getEnvOrDefault("VALIDATOR_TYPE", "jwk"),
		JWTJWKSURL:       getEnvOrDefault("JWT_JWKS_URL", ""),
		FirebaseCredJSON: getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		// Firebase service account
		FirebaseProjectID:   getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseClientEmail: getEnvOrDefault("FIREBASE_CLIENT_EMAIL", ""),
		FirebasePrivateKey:  getEnvOrDefault("FIREBASE_PRIVATE_KEY", ""),

		// Delivery
		FCMBatchSize:           getEnvAsInt("FCM_BATCH_SIZE", 10),
		OutboundTimeoutSeconds: getEnvAsInt("OUTBOUND_TIMEOUT_SECONDS", 10),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		DeliveryHints: DefaultDeliveryHints(),
	}

	// The config file only carries delivery hints; it is optional and the
	// environment never overrides it mid-request.
	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file %s: %w", configFilePath, err)
		}
		log.Printf("No config file at %s, using default delivery hints", configFilePath)
		return cfg, nil
	}
	defer configFile.Close()

	if err := LoadConfigFile(configFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
	}

	return cfg, nil
}

// ServiceAccountConfigured reports whether all three FCM credential values are present.
func (c *Config) ServiceAccountConfigured() bool {
	return c.FirebaseProjectID != "" && c.FirebaseClientEmail != "" && c.FirebasePrivateKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
