package domain

// Rendition is one rung of the static bitrate ladder used for adaptive
// streaming output.
type Rendition struct {
	Label        string
	Height       int
	VideoBitrate string
	MaxRate      string
	BufSize      string
	AudioBitrate string
}

// RenditionLadder is the full ladder, bottom rung first.
var RenditionLadder = []Rendition{
	{Label: "480p", Height: 480, VideoBitrate: "800k", MaxRate: "856k", BufSize: "1200k", AudioBitrate: "96k"},
	{Label: "720p", Height: 720, VideoBitrate: "2800k", MaxRate: "2996k", BufSize: "4200k", AudioBitrate: "128k"},
	{Label: "1080p", Height: 1080, VideoBitrate: "5000k", MaxRate: "5350k", BufSize: "7500k", AudioBitrate: "192k"},
	{Label: "2160p", Height: 2160, VideoBitrate: "15000k", MaxRate: "16050k", BufSize: "22500k", AudioBitrate: "320k"},
}

// SelectRenditions keeps the rungs whose height does not exceed the source
// height, preserving ladder order. Sources below the bottom rung still get
// the bottom rung so every video has at least one rendition.
func SelectRenditions(sourceHeight int) []Rendition {
	var selected []Rendition
	for _, r := range RenditionLadder {
		if r.Height <= sourceHeight {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return []Rendition{RenditionLadder[0]}
	}
	return selected
}
