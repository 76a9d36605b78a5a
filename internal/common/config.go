package common

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Broker      BrokerConfig
	Server      ServerConfig
	Recognition RecognitionConfig
	Storage     StorageConfig
	Worker      WorkerConfig
}

// BrokerConfig holds the RabbitMQ connection and queue settings.
type BrokerConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Queue          string
	ReconnectDelay time.Duration
}

// URL renders the AMQP connection string.
func (b BrokerConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", b.User, b.Password, b.Host, b.Port)
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr string
}

// RecognitionConfig holds the settings for the remote vision model call.
type RecognitionConfig struct {
	BaseURL      string
	Model        string
	Parameters   map[string]any // forwarded verbatim to the model API
	MaxRetries   int
	RetryBackoff time.Duration // scaled by attempt number
	Timeout      time.Duration // per-attempt request deadline
}

// StorageConfig holds the upload directory and the result store DSN.
// A DSN starting with postgres:// selects the Postgres store; anything
// else is treated as a SQLite file path.
type StorageConfig struct {
	ResultsDSN string
	UploadDir  string
}

// WorkerConfig holds the consumer pool settings.
type WorkerConfig struct {
	Count int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:           getEnv("RABBITMQ_HOST", "localhost"),
			Port:           getEnvAsInt("RABBITMQ_PORT", 5672),
			User:           getEnv("RABBITMQ_USER", "guest"),
			Password:       getEnv("RABBITMQ_PASSWORD", "guest"),
			Queue:          getEnv("RABBITMQ_QUEUE", "ocr_queue"),
			ReconnectDelay: getEnvAsDuration("RABBITMQ_RECONNECT_DELAY", 5*time.Second),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":5000"),
		},
		Recognition: RecognitionConfig{
			BaseURL:      getEnv("OLLAMA_API_URL", "http://localhost:11434/api"),
			Model:        getEnv("OLLAMA_MODEL", "qwen2.5vl:7b"),
			Parameters:   getEnvAsMap("OLLAMA_PARAMETERS"),
			MaxRetries:   getEnvAsInt("OCR_MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("OCR_RETRY_BACKOFF", 5*time.Second),
			Timeout:      getEnvAsDuration("OCR_REQUEST_TIMEOUT", 3*time.Minute),
		},
		Storage: StorageConfig{
			ResultsDSN: getEnv("RESULTS_DSN", "data/ocr_results.db"),
			UploadDir:  getEnv("UPLOAD_DIR", "data/uploads"),
		},
		Worker: WorkerConfig{
			Count: getEnvAsInt("WORKER_COUNT", 1),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsMap(key string) map[string]any {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil
	}
	return m
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Broker.Queue == "" {
		return NewAppError("CONFIG_ERROR", "RABBITMQ_QUEUE is required", ErrInvalidInput)
	}
	if c.Recognition.Model == "" {
		return NewAppError("CONFIG_ERROR", "OLLAMA_MODEL is required", ErrInvalidInput)
	}
	if c.Recognition.MaxRetries < 1 {
		return NewAppError("CONFIG_ERROR", "OCR_MAX_RETRIES must be at least 1", ErrInvalidInput)
	}
	if c.Storage.ResultsDSN == "" {
		return NewAppError("CONFIG_ERROR", "RESULTS_DSN is required", ErrInvalidInput)
	}
	if c.Worker.Count < 1 {
		return NewAppError("CONFIG_ERROR", "WORKER_COUNT must be at least 1", ErrInvalidInput)
	}
	return nil
}
