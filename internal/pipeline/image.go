package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/encoder"
	"mediaqueue/internal/metrics"
)

// ImagePipeline downscales an image to fit 1920x1080, synthesises a blurred
// thumbnail, stages the untouched original alongside them and uploads the
// lot in one directory sweep.
type ImagePipeline struct {
	runner encoder.Runner
	blob   Uploader
	logger *slog.Logger
}

func NewImagePipeline(runner encoder.Runner, uploader Uploader, logger *slog.Logger) *ImagePipeline {
	return &ImagePipeline{runner: runner, blob: uploader, logger: logger}
}

func (p *ImagePipeline) Process(ctx context.Context, in Input) (*domain.ImageResult, error) {
	item := in.Item

	// Main downscale is the one stage an image cannot do without.
	if err := p.runner.Run(ctx, encoder.DownscaleArgs(in.LocalPath, in.OutDir, item.Filename), nil); err != nil {
		return nil, fmt.Errorf("image downscale %s: %w", item.Filename, err)
	}

	if err := p.runner.Run(ctx, encoder.BlurredThumbArgs(in.LocalPath, in.OutDir, item.Filename), nil); err != nil {
		p.logger.Warn("blurred thumbnail failed, continuing without it",
			slog.String("mediaId", item.ID),
			slog.String("filename", item.Filename),
			slog.String("error", err.Error()),
		)
	}

	if err := copyFile(in.LocalPath, filepath.Join(in.OutDir, item.Filename)); err != nil {
		return nil, fmt.Errorf("stage original %s: %w", item.Filename, err)
	}

	uploadStart := time.Now()
	uploads, err := p.blob.UploadDirectory(ctx, in.OutDir, in.DestPrefix)
	if err != nil {
		return nil, fmt.Errorf("upload image outputs %s: %w", item.Filename, err)
	}
	metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())

	result := &domain.ImageResult{
		MediaID:      item.ID,
		OriginalName: item.OriginalName,
		Filename:     item.Filename,
		MediaType:    domain.MediaTypeImage,
		Status:       domain.ResultStatusSuccess,
		OriginalURL: findUpload(uploads, func(name string) bool {
			return name == item.Filename
		}),
		ImageURL: findUpload(uploads, func(name string) bool {
			return strings.Contains(name, "_processed")
		}),
		BlurredThumbnailURL: findUpload(uploads, func(name string) bool {
			return strings.HasSuffix(name, "_blurred_thumbnail.jpg")
		}),
	}
	return result, nil
}
