// Package pipeline derives the per-item artifacts: downscaled images with
// blurred thumbnails, and HLS rendition ladders with master playlists.
package pipeline

import (
	"context"
	"io"
	"os"

	"mediaqueue/internal/blob"
	"mediaqueue/internal/domain"
)

// Uploader is the slice of the blob client the pipelines use.
type Uploader interface {
	UploadDirectory(ctx context.Context, localDir, destPrefix string) ([]blob.UploadedFile, error)
}

// Input is one media item staged for processing: the downloaded original
// and a clean output directory for derived files.
type Input struct {
	Item       domain.MediaItem
	LocalPath  string
	OutDir     string
	DestPrefix string
}

// findUpload returns the URL of the first upload matching the predicate,
// or nil.
func findUpload(uploads []blob.UploadedFile, match func(name string) bool) *string {
	for _, u := range uploads {
		if match(u.OriginalName) {
			url := u.URL
			return &url
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
