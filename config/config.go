package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RTC       RTCConfig
	Recording RecordingConfig
	AWS       AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/edulive?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds API JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// RTCConfig holds real-time provider settings for room tokens.
// All fields empty means the provider is not configured; the token endpoint
// reports that so clients fall back to the polled roster view.
type RTCConfig struct {
	WSEndpoint    string // provider endpoint handed to clients, e.g. wss://rtc.example.com
	APIKey        string
	APISecret     string
	TokenTTLHours int
}

// Configured reports whether room tokens can be issued.
func (c RTCConfig) Configured() bool {
	return c.WSEndpoint != "" && c.APIKey != "" && c.APISecret != ""
}

// RecordingConfig holds cloud-recording provider settings.
// CustomerID/CustomerSecret build the Basic auth header; missing values are a
// startup configuration error, not a per-call failure.
type RecordingConfig struct {
	AppID               string
	CustomerID          string
	CustomerSecret      string
	BaseURL             string // REST base, e.g. https://api.agora.io/v1/apps
	ResourceExpiredHour int
	FilesBaseURL        string // public base joined with file_path to build file_url
	StorageVendor       int    // provider storageConfig vendor code (1 = AWS)
	StorageRegion       int
	StorageBucket       string
	StorageAccessKey    string
	StorageSecretKey    string
}

// AWSConfig holds AWS credentials for presigned recording downloads.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "edulive"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		RTC: RTCConfig{
			WSEndpoint:    getEnv("RTC_WS_ENDPOINT", ""),
			APIKey:        getEnv("RTC_API_KEY", ""),
			APISecret:     getEnv("RTC_API_SECRET", ""),
			TokenTTLHours: getEnvInt("RTC_TOKEN_TTL_HOURS", 6),
		},
		Recording: RecordingConfig{
			AppID:               getEnv("RECORDING_APP_ID", ""),
			CustomerID:          getEnv("RECORDING_CUSTOMER_ID", ""),
			CustomerSecret:      getEnv("RECORDING_CUSTOMER_SECRET", ""),
			BaseURL:             getEnv("RECORDING_BASE_URL", "https://api.agora.io/v1/apps"),
			ResourceExpiredHour: getEnvInt("RECORDING_RESOURCE_EXPIRED_HOUR", 24),
			FilesBaseURL:        getEnv("RECORDING_FILES_BASE_URL", ""),
			StorageVendor:       getEnvInt("RECORDING_STORAGE_VENDOR", 1),
			StorageRegion:       getEnvInt("RECORDING_STORAGE_REGION", 0),
			StorageBucket:       getEnv("RECORDING_STORAGE_BUCKET", ""),
			StorageAccessKey:    getEnv("RECORDING_STORAGE_ACCESS_KEY", ""),
			StorageSecretKey:    getEnv("RECORDING_STORAGE_SECRET_KEY", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
