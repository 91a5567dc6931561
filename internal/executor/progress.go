package executor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/notify"
)

// preFinalCeiling caps reported progress until finalisation; the last five
// points belong to the finalisation step alone.
const preFinalCeiling = 95.0

// reporter turns the executor's per-item progress sums into monotone,
// coalesced outbound notifications and store snapshots. Every emission runs
// through the max-progress write-guard, so restarted attempts can never
// report a lower percentage than any earlier one.
type reporter struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	job      *domain.Job
	limiter  *rate.Limiter
	now      func() time.Time
}

func newReporter(store Store, notifier Notifier, logger *slog.Logger, job *domain.Job, coalesce time.Duration) *reporter {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if coalesce > 0 {
		limiter = rate.NewLimiter(rate.Every(coalesce), 1)
	}
	return &reporter{
		store:    store,
		notifier: notifier,
		logger:   logger,
		job:      job,
		limiter:  limiter,
		now:      time.Now,
	}
}

// guard applies the monotone write-guard: the calculated percentage is
// written only when it beats the stored max, and the larger of the two is
// what observers see.
func (r *reporter) guard(ctx context.Context, calculated float64) float64 {
	stored := r.store.GetMaxProgress(ctx, r.job.PostID)
	if calculated > stored {
		r.store.SetMaxProgress(ctx, r.job.PostID, calculated)
		return calculated
	}
	return stored
}

// report emits a processing-phase update. itemSum is the sum of per-item
// progress allotments; the percentage is clamped below the finalisation
// ceiling. Emissions are rate-limited, but a forced report always goes out.
func (r *reporter) report(ctx context.Context, itemSum float64, message string, currentMedia int, force bool) {
	calculated := domain.StartingProgress + itemSum
	if calculated > preFinalCeiling {
		calculated = preFinalCeiling
	}
	pct := r.guard(ctx, calculated)

	if !force && !r.limiter.Allow() {
		return
	}
	r.emit(ctx, pct, message, currentMedia, domain.JobStatusProcessing)
}

// finish advances to 100 and always emits.
func (r *reporter) finish(ctx context.Context, message string) {
	r.store.SetMaxProgress(ctx, r.job.PostID, 100)
	r.emit(ctx, 100, message, len(r.job.Media), domain.JobStatusProcessing)
}

// fail snapshots the failed state at the unchanged max percentage. It never
// retreats and never jumps ahead.
func (r *reporter) fail(ctx context.Context, message string) float64 {
	pct := r.store.GetMaxProgress(ctx, r.job.PostID)
	r.emitSnapshot(ctx, pct, message, 0, domain.JobStatusFailed)
	return pct
}

func (r *reporter) emit(ctx context.Context, pct float64, message string, currentMedia int, status domain.JobStatus) {
	r.emitSnapshot(ctx, pct, message, currentMedia, status)

	if r.job.CallbackURL == "" {
		return
	}
	err := r.notifier.Progress(ctx, r.job.CallbackURL, notify.ProgressUpdate{
		PostID:       r.job.PostID,
		Progress:     pct,
		Message:      message,
		Attempt:      r.job.Attempt,
		Status:       status,
		Type:         "progress",
		CurrentMedia: currentMedia,
		TotalMedia:   len(r.job.Media),
	})
	if err != nil {
		r.logger.Warn("progress callback failed",
			slog.String("postId", r.job.PostID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *reporter) emitSnapshot(ctx context.Context, pct float64, message string, currentMedia int, status domain.JobStatus) {
	r.store.SnapshotProgress(ctx, r.job.PostID, domain.ProgressSnapshot{
		Percentage:   pct,
		Message:      message,
		Status:       status,
		CurrentMedia: currentMedia,
		TotalMedia:   len(r.job.Media),
		UpdatedAt:    r.now(),
	})
}
