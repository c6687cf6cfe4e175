package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

// Params control the time-window chunker. All values are seconds.
type Params struct {
	TargetWindow float64 `json:"target_window_seconds"`
	MaxWindow    float64 `json:"max_window_seconds"`
	MinWindow    float64 `json:"min_window_seconds"`
	Overlap      float64 `json:"overlap_seconds"`
	SilenceGap   float64 `json:"silence_gap_seconds"`
}

// DefaultIndexParams are the windows used by the index pipeline.
func DefaultIndexParams() Params {
	return Params{TargetWindow: 45, MaxWindow: 60, MinWindow: 20, Overlap: 5, SilenceGap: 0.8}
}

// DefaultSummaryParams are the wider windows used by the summarize
// pipeline.
func DefaultSummaryParams() Params {
	return Params{TargetWindow: 120, MaxWindow: 180, MinWindow: 60, Overlap: 10, SilenceGap: 0.8}
}

type Chunk struct {
	Start float64
	End   float64
	Text  string
}

// Sentence terminators that count as natural chunk boundaries. Chinese
// and ASCII forms are equivalent.
var boundaryRunes = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'；': true,
	'.': true,
	'!': true,
	'?': true,
	';': true,
}

func endsWithBoundary(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	runes := []rune(t)
	return boundaryRunes[runes[len(runes)-1]]
}

func validSegment(s transcript.Segment) bool {
	if math.IsNaN(s.Start) || math.IsInf(s.Start, 0) || math.IsNaN(s.End) || math.IsInf(s.End, 0) {
		return false
	}
	if s.End <= s.Start {
		return false
	}
	return strings.TrimSpace(s.Text) != ""
}

// TimeChunks greedily merges segments into windows. Past the target
// length it prefers to cut at a natural boundary (sentence terminator or
// a silence gap to the next segment) once the window reaches the minimum
// length; at the maximum length it force-cuts. Consecutive chunks share
// up to Overlap seconds of trailing segments.
func TimeChunks(segs []transcript.Segment, p Params) []Chunk {
	if p.SilenceGap <= 0 {
		p.SilenceGap = 0.8
	}

	var clean []transcript.Segment
	for _, s := range segs {
		if validSegment(s) {
			clean = append(clean, s)
		}
	}
	n := len(clean)
	if n == 0 {
		return nil
	}

	var out []Chunk
	i := 0
	for i < n {
		j := i
		boundary := -1
		for {
			curLen := clean[j].End - clean[i].Start
			if curLen >= p.TargetWindow {
				if endsWithBoundary(clean[j].Text) {
					boundary = j
				}
				if j+1 < n && clean[j+1].Start-clean[j].End >= p.SilenceGap {
					boundary = j
				}
				if boundary >= 0 && curLen >= p.MinWindow {
					j = boundary
					break
				}
			}
			if curLen >= p.MaxWindow {
				break
			}
			if j+1 >= n {
				break
			}
			j++
		}

		texts := make([]string, 0, j-i+1)
		for k := i; k <= j; k++ {
			texts = append(texts, strings.TrimSpace(clean[k].Text))
		}
		chunk := Chunk{
			Start: clean[i].Start,
			End:   clean[j].End,
			Text:  strings.Join(texts, " "),
		}
		out = append(out, chunk)

		// Rewind so the next chunk re-covers up to Overlap seconds,
		// but always advance by at least one segment.
		threshold := chunk.End - p.Overlap
		k := j
		for k > i && clean[k-1].End > threshold {
			k--
		}
		if k > i {
			i = k
		} else {
			i++
		}
	}
	return out
}

// HashText is the chunk content hash.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HasCJK reports whether any of the first limit runes falls in the CJK
// unified-ideograph range. Used to auto-pick the output language.
func HasCJK(s string, limit int) bool {
	count := 0
	for _, r := range s {
		if limit > 0 && count >= limit {
			break
		}
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
		count++
	}
	return false
}
