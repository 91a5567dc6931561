package executor

import (
	"log/slog"
	"os"
	"path/filepath"

	"mediaqueue/internal/metrics"
)

// scratchDirs owns the per-post scratch namespace. One job attempt owns the
// whole namespace at a time (broker serialises attempts per post), and every
// exit path releases it through Purge.
type scratchDirs struct {
	outputRoot   string
	downloadRoot string
	logger       *slog.Logger
}

func newScratch(outputDir, downloadsDir, postID string, logger *slog.Logger) scratchDirs {
	return scratchDirs{
		outputRoot:   filepath.Join(outputDir, postID),
		downloadRoot: filepath.Join(downloadsDir, postID),
		logger:       logger,
	}
}

// itemDirs purges and recreates the per-item output and download
// directories, so a retried item never sees stale partial output.
func (s scratchDirs) itemDirs(mediaID string) (outDir, dlDir string, err error) {
	outDir = filepath.Join(s.outputRoot, mediaID)
	dlDir = filepath.Join(s.downloadRoot, mediaID)
	for _, dir := range []string{outDir, dlDir} {
		if err = os.RemoveAll(dir); err != nil {
			return "", "", err
		}
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return "", "", err
		}
	}
	return outDir, dlDir, nil
}

// Purge removes both per-post roots. Cleanup failures are logged and
// counted, never raised.
func (s scratchDirs) Purge() {
	for _, dir := range []string{s.outputRoot, s.downloadRoot} {
		if err := os.RemoveAll(dir); err != nil {
			metrics.CleanupErrorsTotal.Inc()
			s.logger.Warn("scratch cleanup failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}
