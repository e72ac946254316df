package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	UploadDir     string
	WorkDir       string
	MaxUploadSize int64

	// Local artifact store, used when no MinIO endpoint is configured.
	ArtifactDir    string
	StorageBaseURL string

	WorkerCount      int
	QueueDepthCap    int
	LeaseDuration    time.Duration
	PollTimeout      time.Duration
	ReaperInterval   time.Duration
	SweeperInterval  time.Duration
	RecordRetention  time.Duration
	MaxAttempts      int
	UploadRetries    int
	UploadBackoff    time.Duration
	TranscodeTimeout time.Duration
	FFmpegPath       string
	FFprobePath      string
	SignedURLTTL     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "video-artifacts"),

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		WorkDir:       getEnv("WORK_DIR", os.TempDir()),
		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 512<<20),

		ArtifactDir:    getEnv("ARTIFACT_DIR", "artifacts"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		WorkerCount:      getEnvInt("WORKER_COUNT", 2),
		QueueDepthCap:    getEnvInt("QUEUE_DEPTH_CAP", 100),
		LeaseDuration:    getEnvDuration("QUEUE_LEASE_DURATION", 15*time.Minute),
		PollTimeout:      getEnvDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
		ReaperInterval:   getEnvDuration("LEASE_REAPER_INTERVAL", 30*time.Second),
		SweeperInterval:  getEnvDuration("RECORD_SWEEP_INTERVAL", time.Hour),
		RecordRetention:  getEnvDuration("RECORD_RETENTION", 24*time.Hour),
		MaxAttempts:      getEnvInt("JOB_MAX_ATTEMPTS", 3),
		UploadRetries:    getEnvInt("UPLOAD_RETRIES", 3),
		UploadBackoff:    getEnvDuration("UPLOAD_RETRY_BACKOFF", 2*time.Second),
		TranscodeTimeout: getEnvDuration("TRANSCODE_TIMEOUT", 10*time.Minute),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      getEnv("FFPROBE_PATH", "ffprobe"),
		SignedURLTTL:     getEnvDuration("SIGNED_URL_TTL", time.Hour),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.LeaseDuration <= cfg.TranscodeTimeout {
		return nil, fmt.Errorf("QUEUE_LEASE_DURATION must exceed TRANSCODE_TIMEOUT, got %s <= %s",
			cfg.LeaseDuration, cfg.TranscodeTimeout)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
