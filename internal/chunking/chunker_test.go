package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

func segsEverySecond(n int, text string) []transcript.Segment {
	out := make([]transcript.Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, transcript.Segment{
			Start: float64(i),
			End:   float64(i + 1),
			Text:  fmt.Sprintf("%s %d", text, i),
		})
	}
	return out
}

func TestTimeChunksRespectsMaxWindow(t *testing.T) {
	p := Params{TargetWindow: 10, MaxWindow: 15, MinWindow: 5, Overlap: 2, SilenceGap: 0.8}
	chunks := TimeChunks(segsEverySecond(100, "word"), p)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, ch := range chunks {
		if ch.End-ch.Start > p.MaxWindow+1 {
			t.Fatalf("chunk %d spans %.1fs, exceeds max window", i, ch.End-ch.Start)
		}
		if ch.Start >= ch.End {
			t.Fatalf("chunk %d has start >= end", i)
		}
	}
}

func TestTimeChunksCutsAtSentenceBoundary(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 4, Text: "one two"},
		{Start: 4, End: 8, Text: "three four."},
		{Start: 8, End: 12, Text: "five six"},
		{Start: 12, End: 16, Text: "seven eight"},
	}
	p := Params{TargetWindow: 6, MaxWindow: 20, MinWindow: 3, Overlap: 0, SilenceGap: 0.8}
	chunks := TimeChunks(segs, p)
	if len(chunks) < 2 {
		t.Fatalf("expected a boundary cut, got %d chunk(s)", len(chunks))
	}
	if chunks[0].End != 8 {
		t.Fatalf("first chunk should end at the sentence boundary (8s), got %.1f", chunks[0].End)
	}
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Fatalf("first chunk should end with the terminator, got %q", chunks[0].Text)
	}
}

func TestTimeChunksCutsAtSilenceGap(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 5, Text: "alpha"},
		{Start: 5, End: 11, Text: "beta"},
		// 2s of silence before the next segment.
		{Start: 13, End: 18, Text: "gamma"},
		{Start: 18, End: 24, Text: "delta"},
	}
	p := Params{TargetWindow: 8, MaxWindow: 30, MinWindow: 4, Overlap: 0, SilenceGap: 0.8}
	chunks := TimeChunks(segs, p)
	if len(chunks) < 2 {
		t.Fatalf("expected a silence-gap cut, got %d chunk(s)", len(chunks))
	}
	if chunks[0].End != 11 {
		t.Fatalf("first chunk should end before the gap (11s), got %.1f", chunks[0].End)
	}
}

func TestTimeChunksOverlap(t *testing.T) {
	p := Params{TargetWindow: 10, MaxWindow: 12, MinWindow: 5, Overlap: 3, SilenceGap: 0.8}
	chunks := TimeChunks(segsEverySecond(60, "w"), p)
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start > chunks[i-1].End {
			t.Fatalf("chunk %d starts after chunk %d ends", i, i-1)
		}
		overlap := chunks[i-1].End - chunks[i].Start
		if overlap > p.Overlap+1 {
			t.Fatalf("chunks %d/%d overlap %.1fs, want <= %.1fs (+1s segment granularity)", i-1, i, overlap, p.Overlap)
		}
	}
}

func TestTimeChunksAlwaysAdvances(t *testing.T) {
	// Overlap larger than the window must not loop forever.
	p := Params{TargetWindow: 2, MaxWindow: 3, MinWindow: 1, Overlap: 100, SilenceGap: 0.8}
	chunks := TimeChunks(segsEverySecond(20, "w"), p)
	if len(chunks) == 0 || len(chunks) > 40 {
		t.Fatalf("unexpected chunk count %d", len(chunks))
	}
}

func TestTimeChunksSkipsInvalidSegments(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 0, Text: "zero length"},
		{Start: 5, End: 4, Text: "inverted"},
		{Start: 1, End: 2, Text: "   "},
		{Start: 2, End: 3, Text: "kept"},
	}
	chunks := TimeChunks(segs, DefaultIndexParams())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "kept" {
		t.Fatalf("got %q", chunks[0].Text)
	}
}

func TestTimeChunksEmpty(t *testing.T) {
	if got := TimeChunks(nil, DefaultIndexParams()); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestHashTextStable(t *testing.T) {
	a := HashText("hello world")
	b := HashText("hello world")
	if a != b {
		t.Fatal("hash not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(a))
	}
	if a == HashText("hello worlds") {
		t.Fatal("distinct inputs must hash differently")
	}
}

func TestHasCJK(t *testing.T) {
	if !HasCJK("这是中文", 400) {
		t.Fatal("expected CJK detection")
	}
	if HasCJK("plain english only", 400) {
		t.Fatal("false positive on ascii")
	}
	// Ideograph past the sniff limit is ignored.
	if HasCJK(strings.Repeat("a", 10)+"中", 5) {
		t.Fatal("limit not honored")
	}
}

func TestChineseBoundaryRunes(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 4, Text: "第一句话"},
		{Start: 4, End: 8, Text: "第二句话。"},
		{Start: 8, End: 12, Text: "第三句话"},
		{Start: 12, End: 16, Text: "第四句话"},
	}
	p := Params{TargetWindow: 6, MaxWindow: 20, MinWindow: 3, Overlap: 0, SilenceGap: 0.8}
	chunks := TimeChunks(segs, p)
	if len(chunks) < 2 || chunks[0].End != 8 {
		t.Fatalf("expected cut at the Chinese full stop, got %+v", chunks)
	}
}
