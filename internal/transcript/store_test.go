package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewStore(t.TempDir(), log)
}

func TestStoreAppendLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if s.Exists("v1") {
		t.Fatal("fresh store should not have v1")
	}

	segs := []Segment{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 1.5, End: 3, Text: "world"},
	}
	if err := s.Append("v1", segs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !s.Exists("v1") {
		t.Fatal("v1 should exist after append")
	}

	got, err := s.Load("v1", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].Text != "hello" || got[1].End != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestStoreLoadLimit(t *testing.T) {
	s := newTestStore(t)
	segs := []Segment{{Start: 0, End: 1, Text: "a"}, {Start: 1, End: 2, Text: "b"}, {Start: 2, End: 3, Text: "c"}}
	if err := s.Append("v1", segs); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.Load("v1", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit ignored, got %d segments", len(got))
	}
}

func TestStoreLastEndTime(t *testing.T) {
	s := newTestStore(t)
	if end, err := s.LastEndTime("missing"); err != nil || end != 0 {
		t.Fatalf("missing log: end=%v err=%v", end, err)
	}

	if err := s.Append("v1", []Segment{{Start: 0, End: 4.25, Text: "x"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append("v1", []Segment{{Start: 4.25, End: 9.5, Text: "y"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	end, err := s.LastEndTime("v1")
	if err != nil {
		t.Fatalf("last end: %v", err)
	}
	if end != 9.5 {
		t.Fatalf("end = %v, want 9.5", end)
	}
}

func TestStoreSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append("v1", []Segment{{Start: 0, End: 1, Text: "ok"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(s.Path("v1"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	got, err := s.Load("v1", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("corrupt line should be skipped, got %d segments", len(got))
	}
}

func TestStoreContentHashTracksContent(t *testing.T) {
	s := newTestStore(t)
	if h, err := s.ContentHash("v1"); err != nil || h != "" {
		t.Fatalf("missing log hash: %q err=%v", h, err)
	}

	if err := s.Append("v1", []Segment{{Start: 0, End: 1, Text: "a"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	h1, err := s.ContentHash("v1")
	if err != nil || h1 == "" {
		t.Fatalf("hash after append: %q err=%v", h1, err)
	}

	if err := s.Append("v1", []Segment{{Start: 1, End: 2, Text: "b"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	h2, err := s.ContentHash("v1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("hash must change when the log grows")
	}
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("missing"); err != nil {
		t.Fatalf("delete of missing log should be a no-op: %v", err)
	}
	if err := s.Append("v1", []Segment{{Start: 0, End: 1, Text: "a"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Delete("v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Exists("v1") {
		t.Fatal("v1 should be gone")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Path("v1")))); err != nil {
		t.Fatalf("store dir should survive: %v", err)
	}
}
