package subtitle

import (
	"fmt"
	"strings"

	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

// RenderSRT formats segments as SubRip: 1-based cue numbers and
// comma-separated milliseconds.
func RenderSRT(segs []transcript.Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTimestamp(seg.Start, ","),
			formatTimestamp(seg.End, ","),
			strings.TrimSpace(seg.Text),
		)
	}
	return b.String()
}

// RenderVTT formats segments as WebVTT: header plus dot-separated
// milliseconds.
func RenderVTT(segs []transcript.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segs {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			formatTimestamp(seg.Start, "."),
			formatTimestamp(seg.End, "."),
			strings.TrimSpace(seg.Text),
		)
	}
	return b.String()
}

// FormatClock renders a time as HH:MM:SS.mmm for chat citations.
func FormatClock(seconds float64) string {
	return formatTimestamp(seconds, ".")
}

func formatTimestamp(seconds float64, msSep string) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMS := int64(seconds*1000 + 0.5)
	h := totalMS / 3600000
	m := (totalMS % 3600000) / 60000
	s := (totalMS % 60000) / 1000
	ms := totalMS % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, msSep, ms)
}
