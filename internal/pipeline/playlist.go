package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediaqueue/internal/domain"
)

// BuildMasterPlaylist composes the top-level adaptive-streaming manifest
// referencing each rendition's own playlist.
func BuildMasterPlaylist(stem string, ladder []domain.Rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n\n")
	for i, r := range ladder {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,NAME=%q\n",
			RenditionBandwidth(r), RenditionWidth(r.Height), r.Height, r.Label)
		fmt.Fprintf(&b, "%s_%s.m3u8\n", stem, r.Label)
	}
	return b.String()
}

// RenditionBandwidth is the advertised peak bandwidth in bits per second:
// video plus audio bitrate, kilobits scaled up.
func RenditionBandwidth(r domain.Rendition) int {
	return (parseKilobits(r.VideoBitrate) + parseKilobits(r.AudioBitrate)) * 1000
}

// RenditionWidth derives the 16:9 width for a rendition height.
func RenditionWidth(height int) int {
	return int(math.Round(float64(height) * 16.0 / 9.0))
}

func parseKilobits(bitrate string) int {
	trimmed := strings.TrimRight(bitrate, "kK")
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return value
}
