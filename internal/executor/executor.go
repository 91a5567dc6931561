// Package executor runs one media job end to end: download, transcode,
// upload, progress accounting and terminal notification. It is the only
// component that talks to the caller's callback.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/metrics"
	"mediaqueue/internal/notify"
	"mediaqueue/internal/pipeline"
)

const signedURLTTL = time.Hour

// Store is the slice of the progress store the executor uses. It is a hint
// cache: implementations swallow their own failures.
type Store interface {
	GetMaxProgress(ctx context.Context, postID string) float64
	SetMaxProgress(ctx context.Context, postID string, value float64)
	GetCompleted(ctx context.Context, postID string) []string
	MarkCompleted(ctx context.Context, postID, mediaID string)
	SetResult(ctx context.Context, postID, mediaID string, result json.RawMessage)
	GetResult(ctx context.Context, postID, mediaID string) json.RawMessage
	SnapshotProgress(ctx context.Context, postID string, snapshot domain.ProgressSnapshot)
}

// Blob is the slice of the blob client the executor itself needs; uploads
// belong to the pipelines.
type Blob interface {
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	DownloadToFile(ctx context.Context, url, localPath string) error
}

// ImageProcessor and VideoProcessor run one item each.
type ImageProcessor interface {
	Process(ctx context.Context, in pipeline.Input) (*domain.ImageResult, error)
}

type VideoProcessor interface {
	Process(ctx context.Context, in pipeline.Input, onEncode func(fraction float64)) (*domain.VideoResult, error)
}

// Notifier posts callbacks; it is injected so the executor has no view of
// HTTP at all.
type Notifier interface {
	Progress(ctx context.Context, url string, update notify.ProgressUpdate) error
	Success(ctx context.Context, url string, notice notify.SuccessNotice) error
	Failure(ctx context.Context, url string, notice notify.FailureNotice) error
}

// Outcome is the terminal object returned to the broker.
type Outcome struct {
	PostID         string
	MediaResults   []json.RawMessage
	TotalProcessed int
	Status         domain.JobStatus
}

// Executor orchestrates the pipelines for one job at a time. Within a job
// everything is strictly sequential; concurrency lives in the worker host.
type Executor struct {
	store    Store
	blob     Blob
	images   ImageProcessor
	videos   VideoProcessor
	notifier Notifier
	logger   *slog.Logger

	outputDir    string
	downloadsDir string
	// coalesce is the minimum interval between outbound progress
	// notifications per post; zero disables rate limiting.
	coalesce time.Duration
}

type Options struct {
	OutputDir        string
	DownloadsDir     string
	CoalesceInterval time.Duration
}

func New(store Store, blob Blob, images ImageProcessor, videos VideoProcessor, notifier Notifier, logger *slog.Logger, opts Options) *Executor {
	coalesce := opts.CoalesceInterval
	if coalesce == 0 {
		coalesce = 250 * time.Millisecond
	}
	return &Executor{
		store:        store,
		blob:         blob,
		images:       images,
		videos:       videos,
		notifier:     notifier,
		logger:       logger,
		outputDir:    opts.OutputDir,
		downloadsDir: opts.DownloadsDir,
		coalesce:     coalesce,
	}
}

// Execute runs the job attempt. The returned error is the broker's cue to
// retry; a nil error means the terminal success callback (if any) went out.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) (*Outcome, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	scratch := newScratch(e.outputDir, e.downloadsDir, job.PostID, e.logger)
	defer scratch.Purge()

	rep := newReporter(e.store, e.notifier, e.logger, job, e.coalesce)

	n := len(job.Media)
	perItem := 70.0 / float64(n)
	itemProgress := make([]float64, n)
	results := make([]json.RawMessage, n)

	// Resume: completed items keep their full allotment and their cached
	// result at the original index; they are never re-encoded. An item is
	// only resumable while its cached result is still readable: a completed
	// marker whose result expired or failed to read is a hint-cache
	// divergence, and skipping it would drop the item from the terminal
	// payload.
	completed := make(map[string]bool)
	for _, id := range e.store.GetCompleted(ctx, job.PostID) {
		completed[id] = true
	}
	for i, item := range job.Media {
		if !completed[item.ID] {
			continue
		}
		raw := e.store.GetResult(ctx, job.PostID, item.ID)
		if raw == nil {
			delete(completed, item.ID)
			e.logger.Warn("completed item has no cached result, re-processing",
				slog.String("postId", job.PostID),
				slog.String("mediaId", item.ID),
			)
			continue
		}
		itemProgress[i] = perItem
		results[i] = raw
	}

	for i, item := range job.Media {
		message := fmt.Sprintf("Processing %d/%d: %s", i+1, n, item.Filename)

		if completed[item.ID] {
			// Keepalive ping with a zero delta; scratch stays untouched.
			metrics.ItemsSkippedTotal.Inc()
			rep.report(ctx, sum(itemProgress), message, i+1, false)
			continue
		}

		rep.report(ctx, sum(itemProgress), message, i+1, true)

		result, err := e.processItem(ctx, job, item, i, perItem, itemProgress, rep, scratch)
		if err != nil {
			return nil, e.failJob(ctx, job, rep, scratch, err)
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return nil, e.failJob(ctx, job, rep, scratch, fmt.Errorf("marshal result for %s: %w", item.ID, err))
		}
		e.store.MarkCompleted(ctx, job.PostID, item.ID)
		e.store.SetResult(ctx, job.PostID, item.ID, raw)
		results[i] = raw
		itemProgress[i] = perItem
		metrics.ItemsProcessedTotal.WithLabelValues(string(item.Type)).Inc()
		rep.report(ctx, sum(itemProgress), fmt.Sprintf("Completed %d/%d: %s", i+1, n, item.Filename), i+1, true)
	}

	rep.report(ctx, sum(itemProgress), "Uploading processed files...", n, true)
	rep.report(ctx, sum(itemProgress)+5, "Finalizing...", n, true)

	scratch.Purge()
	rep.finish(ctx, "Media processing completed successfully")

	ordered := make([]json.RawMessage, 0, n)
	for _, raw := range results {
		if raw != nil {
			ordered = append(ordered, raw)
		}
	}

	if job.CallbackURL != "" && len(ordered) > 0 {
		err := e.notifier.Success(ctx, job.CallbackURL, notify.SuccessNotice{
			PostID:         job.PostID,
			MediaResults:   ordered,
			TotalProcessed: len(ordered),
			Attempt:        job.Attempt,
			Status:         domain.JobStatusSuccess,
			Progress:       100,
			Message:        "Media processing completed successfully",
		})
		if err != nil {
			e.logger.Warn("success callback failed",
				slog.String("postId", job.PostID),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.JobsTotal.WithLabelValues(string(domain.JobStatusSuccess)).Inc()
	return &Outcome{
		PostID:         job.PostID,
		MediaResults:   ordered,
		TotalProcessed: len(ordered),
		Status:         domain.JobStatusSuccess,
	}, nil
}

// processItem downloads the original and dispatches to the pipeline for
// the item's type. It owns the item's share of the progress band.
func (e *Executor) processItem(ctx context.Context, job *domain.Job, item domain.MediaItem, index int, perItem float64, itemProgress []float64, rep *reporter, scratch scratchDirs) (any, error) {
	outDir, dlDir, err := scratch.itemDirs(item.ID)
	if err != nil {
		return nil, fmt.Errorf("prepare scratch for %s: %w", item.ID, err)
	}

	key := joinKey(job.S3Key, "original", item.Filename)
	url, err := e.blob.SignedReadURL(ctx, key, signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign read for %s: %w", key, err)
	}

	downloadStart := time.Now()
	localPath := filepath.Join(dlDir, item.Filename)
	if err := e.blob.DownloadToFile(ctx, url, localPath); err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	metrics.DownloadDuration.Observe(time.Since(downloadStart).Seconds())

	itemProgress[index] = 0.1 * perItem
	message := fmt.Sprintf("Processing %d/%d: %s", index+1, len(job.Media), item.Filename)
	rep.report(ctx, sum(itemProgress), message, index+1, false)

	in := pipeline.Input{
		Item:       item,
		LocalPath:  localPath,
		OutDir:     outDir,
		DestPrefix: joinKey(job.S3Key, "processed"),
	}

	switch item.Type {
	case domain.MediaTypeVideo:
		return e.videos.Process(ctx, in, func(fraction float64) {
			// Encode phase spans 70% of the item's allotment on top of the
			// 10% download share; the level is monotone per item.
			level := 0.1*perItem + 0.7*perItem*fraction
			if level > itemProgress[index] {
				itemProgress[index] = level
			}
			rep.report(ctx, sum(itemProgress), message, index+1, false)
		})
	case domain.MediaTypeImage:
		return e.images.Process(ctx, in)
	default:
		return nil, domain.ErrInvalidMediaItem
	}
}

// failJob runs the failure path: snapshot at the unchanged max, purge
// scratch, post the terminal failure callback and hand the error back for
// the broker's retry policy. A broker-cancelled attempt gets no terminal
// callback at all.
func (e *Executor) failJob(ctx context.Context, job *domain.Job, rep *reporter, scratch scratchDirs, cause error) error {
	scratch.Purge()

	if ctx.Err() != nil || errors.Is(cause, context.Canceled) {
		metrics.JobsTotal.WithLabelValues("canceled").Inc()
		e.logger.Info("job attempt cancelled",
			slog.String("postId", job.PostID),
			slog.Int("attempt", job.Attempt),
		)
		return cause
	}

	pct := rep.fail(ctx, cause.Error())

	if job.CallbackURL != "" {
		err := e.notifier.Failure(ctx, job.CallbackURL, notify.FailureNotice{
			PostID:   job.PostID,
			Error:    cause.Error(),
			Attempt:  job.Attempt,
			Status:   domain.JobStatusFailed,
			Progress: pct,
			Message:  "Media processing failed",
		})
		if err != nil {
			e.logger.Warn("failure callback failed",
				slog.String("postId", job.PostID),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.JobsTotal.WithLabelValues(string(domain.JobStatusFailed)).Inc()
	e.logger.Error("job attempt failed",
		slog.String("postId", job.PostID),
		slog.Int("attempt", job.Attempt),
		slog.String("error", cause.Error()),
	)
	return cause
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// joinKey joins key parts with single slashes; s3Key carries a trailing
// slash by convention but is not required to.
func joinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}
