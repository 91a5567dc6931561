package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mediaqueue/internal/app"
	"mediaqueue/internal/blob"
	"mediaqueue/internal/encoder"
	"mediaqueue/internal/executor"
	"mediaqueue/internal/metrics"
	"mediaqueue/internal/notify"
	"mediaqueue/internal/pipeline"
	"mediaqueue/internal/progress"
	"mediaqueue/internal/queue"
	"mediaqueue/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mediaqueue-worker")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mediaqueue-worker"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("queue", cfg.QueueName),
		slog.String("cleanupQueue", cfg.CleanupQueueName),
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.Int("maxAttempts", cfg.MaxAttempts),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("outputDir", cfg.OutputDir),
		slog.String("downloadsDir", cfg.DownloadsDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("redis url invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	blobClient, err := blob.NewClient(ctx, blob.Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	}, logger)
	if err != nil {
		logger.Error("blob client init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	driver := encoder.NewDriver(cfg.FFMPEGPath, logger)
	store := progress.NewStore(redisClient, logger)
	notifier := notify.NewHTTPNotifier(nil, logger)
	images := pipeline.NewImagePipeline(driver, blobClient, logger)
	videos := pipeline.NewVideoPipeline(driver, blobClient, logger)

	exec := executor.New(store, blobClient, images, videos, notifier, logger, executor.Options{
		OutputDir:    cfg.OutputDir,
		DownloadsDir: cfg.DownloadsDir,
	})

	consumer := queue.NewConsumer(redisClient, exec, logger, cfg.QueueName, cfg.WorkerConcurrency, cfg.MaxAttempts)
	cleanup := queue.NewCleanupConsumer(redisClient, logger, cfg.CleanupQueueName)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		consumer.Run(rootCtx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Run(rootCtx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	traced := otelhttp.NewHandler(mux, "mediaqueue-admin",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		}),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           traced,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("worker started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	wg.Wait()
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close error", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
