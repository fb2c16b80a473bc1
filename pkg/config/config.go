package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Recorder RecorderConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Assembly AssemblyAIConfig
	Groq     GroqConfig
	LiveKit  LiveKitConfig
}

// ServerConfig holds the admin API server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ShutdownTimeout int
}

// RecorderConfig holds the capture pipeline configuration
type RecorderConfig struct {
	// OutputDir is where raw captures, intermediates and artifacts live.
	OutputDir string
	// BackupDir receives pre-transform copies of valid captures.
	BackupDir string
	// SegmentPeriod is the fixed processing window (5 minutes in production).
	SegmentPeriod time.Duration
	// CaptureTimeout force-closes a capture unit whose stream never ends.
	CaptureTimeout time.Duration
	// CodecWorkers caps concurrent external codec processes.
	CodecWorkers int
	// FFmpegPath overrides the ffmpeg binary location.
	FFmpegPath string
	// BotPrefix identifies bot participants to exclude from attendee sets.
	BotPrefix string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
	// AutoMigrate runs gorm migrations on startup (development only).
	AutoMigrate bool
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	UseSSL          bool
}

// AssemblyAIConfig holds transcription service configuration
type AssemblyAIConfig struct {
	APIKey string
}

// GroqConfig holds the summary LLM configuration
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LiveKitConfig holds voice-room service configuration
type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	UseMock   bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 30),
		},
		Recorder: RecorderConfig{
			OutputDir:      getEnv("RECORDER_OUTPUT_DIR", "./recordings"),
			BackupDir:      getEnv("RECORDER_BACKUP_DIR", "./recordings/backup"),
			SegmentPeriod:  getEnvAsDuration("RECORDER_SEGMENT_PERIOD", "5m"),
			CaptureTimeout: getEnvAsDuration("RECORDER_CAPTURE_TIMEOUT", "2m"),
			CodecWorkers:   getEnvAsInt("RECORDER_CODEC_WORKERS", 4),
			FFmpegPath:     getEnv("RECORDER_FFMPEG_PATH", "ffmpeg"),
			BotPrefix:      getEnv("RECORDER_BOT_PREFIX", "bot-"),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvAsBool("DB_ENABLED", false),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Name:        getEnv("DB_NAME", "meeting_recorder"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Storage: StorageConfig{
			Enabled:         getEnvAsBool("STORAGE_ENABLED", false),
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "meeting-recordings"),
			PublicURL:       getEnv("STORAGE_PUBLIC_URL", ""),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
		},
		Assembly: AssemblyAIConfig{
			APIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
		},
		Groq: GroqConfig{
			APIKey:  getEnv("GROQ_API_KEY", ""),
			BaseURL: getEnv("GROQ_API_URL", "https://api.groq.com"),
			Model:   getEnv("GROQ_MODEL", "llama-3.1-70b-versatile"),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", "http://localhost:7880"),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
			UseMock:   getEnvAsBool("LIVEKIT_USE_MOCK", true),
		},
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Recorder.OutputDir == "" {
		return fmt.Errorf("RECORDER_OUTPUT_DIR is required")
	}
	if c.Recorder.SegmentPeriod <= 0 {
		return fmt.Errorf("RECORDER_SEGMENT_PERIOD must be positive")
	}
	if c.Recorder.CaptureTimeout <= 0 {
		return fmt.Errorf("RECORDER_CAPTURE_TIMEOUT must be positive")
	}
	if c.Recorder.CodecWorkers <= 0 {
		return fmt.Errorf("RECORDER_CODEC_WORKERS must be positive")
	}
	if !c.LiveKit.UseMock && (c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "") {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required unless LIVEKIT_USE_MOCK is set")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
