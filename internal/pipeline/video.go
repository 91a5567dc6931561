package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/encoder"
	"mediaqueue/internal/metrics"
)

// VideoPipeline encodes a video into its rendition ladder serially, grabs a
// thumbnail, synthesises the master playlist and uploads everything.
// Renditions run one at a time: encoding is CPU-bound and parallel
// renditions would contend rather than help.
type VideoPipeline struct {
	runner encoder.Runner
	blob   Uploader
	logger *slog.Logger
}

func NewVideoPipeline(runner encoder.Runner, uploader Uploader, logger *slog.Logger) *VideoPipeline {
	return &VideoPipeline{runner: runner, blob: uploader, logger: logger}
}

// Process runs the full video flow. onEncode, when non-nil, receives the
// overall encode fraction in [0,1] across all renditions, combining the
// per-rendition live percentage with the count of finished renditions.
func (p *VideoPipeline) Process(ctx context.Context, in Input, onEncode func(fraction float64)) (*domain.VideoResult, error) {
	item := in.Item
	ladder := domain.SelectRenditions(item.Height)
	stem := encoder.Stem(item.Filename)

	if err := p.runner.Run(ctx, encoder.ThumbnailArgs(in.LocalPath, in.OutDir, item.Filename, time.Second), nil); err != nil {
		p.logger.Warn("video thumbnail failed, continuing without it",
			slog.String("mediaId", item.ID),
			slog.String("filename", item.Filename),
			slog.String("error", err.Error()),
		)
	}

	total := len(ladder)
	for i, r := range ladder {
		finished := i
		args := encoder.RenditionArgs(in.LocalPath, in.OutDir, r, item.Filename)
		err := p.runner.Run(ctx, args, func(pct float64) {
			if onEncode != nil {
				onEncode((float64(finished) + pct/100) / float64(total))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("rendition %s of %s: %w", r.Label, item.Filename, err)
		}
		// Coarse floor for inputs whose duration never parsed.
		if onEncode != nil {
			onEncode(float64(i+1) / float64(total))
		}
	}

	masterPath := filepath.Join(in.OutDir, stem+"_master.m3u8")
	playlist := BuildMasterPlaylist(stem, ladder)
	if err := os.WriteFile(masterPath, []byte(playlist), 0o644); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMasterPlaylistMissing, err)
	}

	uploadStart := time.Now()
	uploads, err := p.blob.UploadDirectory(ctx, in.OutDir, in.DestPrefix)
	if err != nil {
		return nil, fmt.Errorf("upload video outputs %s: %w", item.Filename, err)
	}
	metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())

	masterURL := findUpload(uploads, func(name string) bool {
		return strings.HasSuffix(name, "_master.m3u8")
	})
	if masterURL == nil {
		return nil, fmt.Errorf("%w: not among uploads for %s", domain.ErrMasterPlaylistMissing, item.Filename)
	}

	result := &domain.VideoResult{
		MediaID:           item.ID,
		OriginalName:      item.OriginalName,
		Filename:          item.Filename,
		MediaType:         domain.MediaTypeVideo,
		Status:            domain.ResultStatusSuccess,
		MasterPlaylistURL: masterURL,
		ThumbnailURL: findUpload(uploads, func(name string) bool {
			return strings.HasSuffix(name, "_thumbnail.jpg") && !strings.HasSuffix(name, "_blurred_thumbnail.jpg")
		}),
	}
	return result, nil
}
