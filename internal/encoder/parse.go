package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// parseDurationLine extracts the total duration from the stream-info block,
// e.g. "  Duration: 00:01:30.05, start: 0.000000, bitrate: 1205 kb/s".
func parseDurationLine(line string) (float64, bool) {
	if !strings.Contains(line, "Duration:") {
		return 0, false
	}
	m := durationRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return clockSeconds(m[1], m[2], m[3])
}

// parseTimeValue extracts the current position from an encoder status line,
// e.g. "frame= 120 fps= 30 ... time=00:00:04.02 bitrate= ...".
func parseTimeValue(line string) (float64, bool) {
	if !strings.Contains(line, "time=") {
		return 0, false
	}
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return clockSeconds(m[1], m[2], m[3])
}

func clockSeconds(hours, minutes, seconds string) (float64, bool) {
	h, err1 := strconv.Atoi(hours)
	m, err2 := strconv.Atoi(minutes)
	s, err3 := strconv.ParseFloat(seconds, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + s, true
}
