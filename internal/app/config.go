package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr         string
	RedisURL         string
	QueueName        string
	CleanupQueueName string
	WorkerConcurrency int
	MaxAttempts      int
	LogLevel         string
	LogFormat        string
	FFMPEGPath       string
	OutputDir        string
	DownloadsDir     string
	S3Endpoint       string
	S3Bucket         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          ":" + getEnv("PORT", "8080"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnv("QUEUE_NAME", "media-processing"),
		CleanupQueueName:  getEnv("CLEANUP_QUEUE_NAME", "cleanup-failed-media"),
		WorkerConcurrency: int(getEnvInt64("WORKER_CONCURRENCY", 2)),
		MaxAttempts:       int(getEnvInt64("MAX_ATTEMPTS", 3)),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		FFMPEGPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		OutputDir:         getEnv("OUTPUT_DIR", "output"),
		DownloadsDir:      getEnv("DOWNLOADS_DIR", "downloads"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
