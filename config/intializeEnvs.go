package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	godotenv "github.com/joho/godotenv"
)

type Config struct {
	RabbitMqURL    string
	RabbitMqQueues []string
	AwsBucketName  string
	Aws            AwsConfig

	// WorkDir is the worker's scratch space for raw and generated images.
	WorkDir string
	// DownloadDir is where the client stores downloaded texture maps.
	DownloadDir string
	HTTPAddr    string

	TextureMode string
	TextureSize int

	// NotificationHistory caps the notifications the client keeps.
	NotificationHistory int

	Poll PollConfig
	Log  LogConfig
}

// AwsConfig holds optional overrides for S3-compatible endpoints such as MinIO.
type AwsConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// PollConfig controls the opt-in automatic status polling. Disabled by default:
// status is only queried when the user asks for it.
type PollConfig struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxTries        uint
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string
	// Format: console or json
	Format string
	// Outputs: stdout, stderr, or file paths
	Outputs     []string
	Development bool
	Rotation    RotationConfig
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func loadEnvFiles() {
	switch os.Getenv("APP_ENV") {
	case "docker":
		if err := godotenv.Overload(".env.docker"); err == nil {
			log.Println("Loaded .env.docker")
		} else {
			log.Println(".env.docker not found, using existing environment")
		}
	case "dev", "":
		if err := godotenv.Overload(".env.dev"); err == nil {
			log.Println("Loaded .env.dev")
		} else if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		} else {
			log.Println("No .env.dev or .env found, using system environment variables")
		}
	default:
		fname := ".env." + os.Getenv("APP_ENV")
		if err := godotenv.Overload(fname); err == nil {
			log.Printf("Loaded %s", fname)
		} else if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		} else {
			log.Printf("No %s or .env found, using system environment variables", fname)
		}
	}
}

// InitializeEnvs loads the env file selected by APP_ENV and builds the Config
// from the process environment.
func InitializeEnvs() (*Config, error) {
	loadEnvFiles()
	return FromEnv()
}

// FromEnv builds the Config from the current process environment only.
func FromEnv() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working dir: %w", err)
	}

	cfg := &Config{
		RabbitMqURL:    os.Getenv("RABBITMQ_URL"),
		RabbitMqQueues: splitList(getEnv("RABBITMQ_QUEUES", JobQueue+","+StatusQueue)),
		AwsBucketName:  os.Getenv("AWS_BUCKET_NAME"),
		Aws: AwsConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("AWS_ENDPOINT"),
		},
		WorkDir:     getEnv("WORK_DIR", wd+"/images"),
		DownloadDir: getEnv("DOWNLOAD_DIR", wd+"/3dModeling/material/download"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		TextureMode: strings.ToLower(getEnv("TEXTURE_MODE", "ai")),
		Poll: PollConfig{
			Enabled: getEnv("POLL_ENABLED", "false") == "true",
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "console"),
			Outputs:     splitList(getEnv("LOG_OUTPUTS", "stdout")),
			Development: getEnv("LOG_DEVELOPMENT", "false") == "true",
			Rotation: RotationConfig{
				Enable:     getEnv("LOG_ROTATE", "false") == "true",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}

	if cfg.TextureSize, err = strconv.Atoi(getEnv("TEXTURE_SIZE", "1024")); err != nil || cfg.TextureSize <= 0 {
		return nil, fmt.Errorf("TEXTURE_SIZE must be a positive integer")
	}
	if cfg.Poll.InitialInterval, err = time.ParseDuration(getEnv("POLL_INITIAL_INTERVAL", "2s")); err != nil {
		return nil, fmt.Errorf("POLL_INITIAL_INTERVAL: %w", err)
	}
	if cfg.Poll.MaxInterval, err = time.ParseDuration(getEnv("POLL_MAX_INTERVAL", "30s")); err != nil {
		return nil, fmt.Errorf("POLL_MAX_INTERVAL: %w", err)
	}
	if cfg.Poll.MaxElapsed, err = time.ParseDuration(getEnv("POLL_MAX_ELAPSED", "10m")); err != nil {
		return nil, fmt.Errorf("POLL_MAX_ELAPSED: %w", err)
	}
	if cfg.NotificationHistory, err = strconv.Atoi(getEnv("NOTIFICATION_HISTORY", "100")); err != nil || cfg.NotificationHistory <= 0 {
		return nil, fmt.Errorf("NOTIFICATION_HISTORY must be a positive integer")
	}
	tries, err := strconv.ParseUint(getEnv("POLL_MAX_TRIES", "0"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("POLL_MAX_TRIES: %w", err)
	}
	cfg.Poll.MaxTries = uint(tries)

	if cfg.RabbitMqURL == "" || cfg.AwsBucketName == "" {
		return nil, fmt.Errorf("RABBITMQ_URL or AWS_BUCKET_NAME is missing")
	}
	if cfg.TextureMode != "ai" && cfg.TextureMode != "manual" {
		return nil, fmt.Errorf("TEXTURE_MODE must be ai or manual, got %q", cfg.TextureMode)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
