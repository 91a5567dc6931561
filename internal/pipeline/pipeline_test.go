package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaqueue/internal/blob"
	"mediaqueue/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner pretends to be the encoder: it touches the output file named by
// the last argument, feeds canned progress, and fails on demand.
type fakeRunner struct {
	calls      [][]string
	failSuffix string
	progress   []float64
}

func (f *fakeRunner) Run(_ context.Context, args []string, onProgress func(pct float64)) error {
	f.calls = append(f.calls, args)
	out := args[len(args)-1]
	if f.failSuffix != "" && strings.HasSuffix(out, f.failSuffix) {
		return &domain.EncoderError{Code: 1, StderrTail: "synthetic failure"}
	}
	for _, pct := range f.progress {
		if onProgress != nil {
			onProgress(pct)
		}
	}
	return os.WriteFile(out, []byte("stub"), 0o644)
}

// fakeUploader sweeps the staged directory the way the real client does and
// mints deterministic URLs.
type fakeUploader struct {
	prefix string
	err    error
}

func (f *fakeUploader) UploadDirectory(_ context.Context, localDir, destPrefix string) ([]blob.UploadedFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.prefix = destPrefix
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, err
	}
	var uploads []blob.UploadedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := destPrefix + "/" + e.Name()
		uploads = append(uploads, blob.UploadedFile{
			OriginalName: e.Name(),
			Key:          key,
			URL:          "https://cdn.test/" + key,
		})
	}
	return uploads, nil
}

func stageInput(t *testing.T, item domain.MediaItem) Input {
	t.Helper()
	dlDir := t.TempDir()
	local := filepath.Join(dlDir, item.Filename)
	if err := os.WriteFile(local, []byte("original-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return Input{
		Item:       item,
		LocalPath:  local,
		OutDir:     t.TempDir(),
		DestPrefix: "posts/p1/processed",
	}
}

func TestVideoPipelineProcess(t *testing.T) {
	runner := &fakeRunner{progress: []float64{50}}
	uploader := &fakeUploader{}
	p := NewVideoPipeline(runner, uploader, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "v1", Type: domain.MediaTypeVideo, Filename: "clip.mp4", OriginalName: "My Clip.mp4", Height: 720})

	var fractions []float64
	result, err := p.Process(context.Background(), in, func(fraction float64) {
		fractions = append(fractions, fraction)
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// thumbnail + two renditions
	if len(runner.calls) != 3 {
		t.Fatalf("got %d encoder calls, want 3", len(runner.calls))
	}

	want := []float64{0.25, 0.5, 0.75, 1}
	if len(fractions) != len(want) {
		t.Fatalf("fractions %v, want %v", fractions, want)
	}
	for i := range want {
		if diff := fractions[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("fractions %v, want %v", fractions, want)
		}
	}

	if result.MasterPlaylistURL == nil || !strings.HasSuffix(*result.MasterPlaylistURL, "clip_master.m3u8") {
		t.Fatalf("master playlist url %v", result.MasterPlaylistURL)
	}
	if result.ThumbnailURL == nil || !strings.HasSuffix(*result.ThumbnailURL, "clip_thumbnail.jpg") {
		t.Fatalf("thumbnail url %v", result.ThumbnailURL)
	}
	if result.Status != domain.ResultStatusSuccess || result.MediaType != domain.MediaTypeVideo {
		t.Fatalf("unexpected result %+v", result)
	}
	if uploader.prefix != in.DestPrefix {
		t.Fatalf("uploaded under %q, want %q", uploader.prefix, in.DestPrefix)
	}
}

func TestVideoPipelineThumbnailFailureIsNonFatal(t *testing.T) {
	runner := &fakeRunner{failSuffix: "_thumbnail.jpg"}
	p := NewVideoPipeline(runner, &fakeUploader{}, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "v1", Type: domain.MediaTypeVideo, Filename: "clip.mp4", Height: 480})
	result, err := p.Process(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.ThumbnailURL != nil {
		t.Fatal("thumbnail url should be nil when the grab failed")
	}
	if result.MasterPlaylistURL == nil {
		t.Fatal("master playlist still required")
	}
}

func TestVideoPipelineRenditionFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{failSuffix: "_480p.m3u8"}
	p := NewVideoPipeline(runner, &fakeUploader{}, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "v1", Type: domain.MediaTypeVideo, Filename: "clip.mp4", Height: 480})
	if _, err := p.Process(context.Background(), in, nil); !errors.Is(err, domain.ErrEncoderFailed) {
		t.Fatalf("got %v, want ErrEncoderFailed", err)
	}
}

func TestImagePipelineProcess(t *testing.T) {
	runner := &fakeRunner{}
	p := NewImagePipeline(runner, &fakeUploader{}, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "i1", Type: domain.MediaTypeImage, Filename: "photo.jpg", OriginalName: "Photo.jpg"})
	result, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if result.OriginalURL == nil || !strings.HasSuffix(*result.OriginalURL, "/photo.jpg") {
		t.Fatalf("original url %v", result.OriginalURL)
	}
	if result.ImageURL == nil || !strings.HasSuffix(*result.ImageURL, "photo_processed.jpg") {
		t.Fatalf("image url %v", result.ImageURL)
	}
	if result.BlurredThumbnailURL == nil || !strings.HasSuffix(*result.BlurredThumbnailURL, "photo_blurred_thumbnail.jpg") {
		t.Fatalf("blurred thumbnail url %v", result.BlurredThumbnailURL)
	}
}

func TestImagePipelineBlurredThumbFailureIsNonFatal(t *testing.T) {
	runner := &fakeRunner{failSuffix: "_blurred_thumbnail.jpg"}
	p := NewImagePipeline(runner, &fakeUploader{}, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "i1", Type: domain.MediaTypeImage, Filename: "photo.jpg"})
	result, err := p.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if result.BlurredThumbnailURL != nil {
		t.Fatal("blurred thumbnail url should be nil")
	}
	if result.ImageURL == nil {
		t.Fatal("processed image still required")
	}
}

func TestImagePipelineDownscaleFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{failSuffix: "_processed.jpg"}
	p := NewImagePipeline(runner, &fakeUploader{}, testLogger())

	in := stageInput(t, domain.MediaItem{ID: "i1", Type: domain.MediaTypeImage, Filename: "photo.jpg"})
	if _, err := p.Process(context.Background(), in); !errors.Is(err, domain.ErrEncoderFailed) {
		t.Fatalf("got %v, want ErrEncoderFailed", err)
	}
}
