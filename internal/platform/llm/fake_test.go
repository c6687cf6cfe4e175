package llm

import (
	"context"
	"strings"
	"testing"
)

func TestSplitRuns(t *testing.T) {
	got := SplitRuns("abcdef", 2)
	if len(got) != 3 || got[0] != "ab" || got[2] != "ef" {
		t.Fatalf("got %v", got)
	}
	// Multi-byte runes must never be split mid-character.
	got = SplitRuns("中文回答测试", 2)
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	for _, part := range got {
		if !strings.ContainsRune("中文回答测试", []rune(part)[0]) {
			t.Fatalf("broken rune in %q", part)
		}
	}
	if strings.Join(got, "") != "中文回答测试" {
		t.Fatalf("pieces do not reassemble: %v", got)
	}

	if got := SplitRuns("anything", 0); len(got) != 1 || got[0] != "anything" {
		t.Fatalf("n<=0 should return the whole string, got %v", got)
	}
	if got := SplitRuns("", 4); len(got) != 0 {
		t.Fatalf("empty input should split to nothing, got %v", got)
	}
}

func TestFakeProviderGenerate(t *testing.T) {
	p := NewFakeProvider()
	out, err := p.Generate(context.Background(), []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	}, Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "[fake] second" {
		t.Fatalf("got %q", out)
	}
}

func TestFakeProviderStreamConcatsToAnswer(t *testing.T) {
	p := NewFakeProvider()
	var b strings.Builder
	answer, err := p.StreamGenerate(context.Background(), []Message{
		{Role: "user", Content: strings.Repeat("x", 50)},
	}, Options{}, func(delta string) error {
		b.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if b.String() != answer {
		t.Fatalf("deltas %q != answer %q", b.String(), answer)
	}
	if b.Len() == 0 {
		t.Fatal("expected streamed content")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewFakeProvider())
	if r.Get("fake") == nil {
		t.Fatal("fake provider should be registered")
	}
	if r.Get("missing") != nil {
		t.Fatal("unknown provider should be nil")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "none" || names[1] != "fake" {
		t.Fatalf("names = %v", names)
	}
}
