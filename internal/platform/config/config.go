package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// HTTPサーバ設定
	Server ServerConfig

	// Database設定（Supabase PostgreSQL）
	Database DatabaseConfig

	// OpenAI設定（Whisper文字起こし用）
	OpenAI OpenAIConfig

	// ワーカー挙動の調整
	Worker WorkerConfig

	// ログ設定
	LogLevel  string
	LogFormat string
}

// ServerConfig はHTTPサーバの設定
type ServerConfig struct {
	Port int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey   string
	Model    string // Whisperモデル名
	Language string // 文字起こし言語（例: "es"）
}

// WorkerConfig はジョブ処理の調整値
type WorkerConfig struct {
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	StoreTimeout      time.Duration

	FailureThreshold int           // クールダウンに入るまでの連続失敗回数
	SuspendDuration  time.Duration // クールダウンの継続時間
	BackoffBase      time.Duration
	BackoffMax       time.Duration

	PollEnabled   bool
	PollInterval  time.Duration
	PollBatchSize int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("PORT", 8000),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
		},
		OpenAI: OpenAIConfig{
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Model:    getEnv("OPENAI_WHISPER_MODEL", "whisper-1"),
			Language: getEnv("OPENAI_WHISPER_LANGUAGE", "es"),
		},
		Worker: WorkerConfig{
			FetchTimeout:      getEnvAsDuration("WORKER_FETCH_TIMEOUT", 60*time.Second),
			TranscribeTimeout: getEnvAsDuration("WORKER_TRANSCRIBE_TIMEOUT", 120*time.Second),
			StoreTimeout:      getEnvAsDuration("WORKER_STORE_TIMEOUT", 10*time.Second),
			FailureThreshold:  getEnvAsInt("WORKER_FAILURE_THRESHOLD", 5),
			SuspendDuration:   getEnvAsDuration("WORKER_SUSPEND_DURATION", 5*time.Minute),
			BackoffBase:       getEnvAsDuration("WORKER_BACKOFF_BASE", 5*time.Second),
			BackoffMax:        getEnvAsDuration("WORKER_BACKOFF_MAX", 5*time.Minute),
			PollEnabled:       getEnvAsBool("WORKER_POLL_ENABLED", true),
			PollInterval:      getEnvAsDuration("WORKER_POLL_INTERVAL", 30*time.Second),
			PollBatchSize:     getEnvAsInt("WORKER_POLL_BATCH_SIZE", 20),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "30s", "5m"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
