package encoder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mediaqueue/internal/domain"
)

// Stem returns the filename without its extension, used to name every
// derived artifact.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// RenditionArgs builds the argv for one HLS rendition encode. Output is
// <outDir>/<stem>_<label>.m3u8 plus its numbered segments.
func RenditionArgs(input, outDir string, r domain.Rendition, filename string) []string {
	stem := Stem(filename)
	return []string{
		"-i", input,
		"-hide_banner",
		"-y",
		"-vf", fmt.Sprintf("scale=w=-2:h=%d", r.Height),
		"-c:v", "h264",
		"-profile:v", "main",
		"-crf", "20",
		"-g", "48",
		"-keyint_min", "48",
		"-b:v", r.VideoBitrate,
		"-maxrate", r.MaxRate,
		"-bufsize", r.BufSize,
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", r.AudioBitrate,
		"-f", "hls",
		"-hls_time", "4",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, fmt.Sprintf("%s_%s_%%03d.ts", stem, r.Label)),
		filepath.Join(outDir, fmt.Sprintf("%s_%s.m3u8", stem, r.Label)),
	}
}

// ThumbnailArgs builds the argv for a single 320x180 JPEG frame grab at
// the given offset.
func ThumbnailArgs(input, outDir, filename string, offset time.Duration) []string {
	if offset <= 0 {
		offset = time.Second
	}
	return []string{
		"-i", input,
		"-ss", formatClock(offset),
		"-vframes", "1",
		"-vf", "scale=320:180",
		"-q:v", "2",
		"-y",
		filepath.Join(outDir, Stem(filename)+"_thumbnail.jpg"),
	}
}

// DownscaleArgs builds the argv that fits an image within 1920x1080
// preserving aspect ratio. The processed file keeps the source extension.
func DownscaleArgs(input, outDir, filename string) []string {
	return []string{
		"-i", input,
		"-vf", "scale=1920:1080:force_original_aspect_ratio=decrease",
		"-q:v", "2",
		"-y",
		filepath.Join(outDir, Stem(filename)+"_processed"+filepath.Ext(filename)),
	}
}

// BlurredThumbArgs builds the argv for the blurred 320x240 thumbnail.
func BlurredThumbArgs(input, outDir, filename string) []string {
	return []string{
		"-i", input,
		"-vf", "scale=320:240:force_original_aspect_ratio=decrease,boxblur=10:1",
		"-q:v", "5",
		"-y",
		filepath.Join(outDir, Stem(filename)+"_blurred_thumbnail.jpg"),
	}
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
