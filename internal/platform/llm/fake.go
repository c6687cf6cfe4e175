package llm

import (
	"context"
)

// FakeProvider echoes the last user message. It keeps the whole pipeline
// exercisable without any model running.
type FakeProvider struct{}

func NewFakeProvider() *FakeProvider { return &FakeProvider{} }

func (p *FakeProvider) Name() string              { return "fake" }
func (p *FakeProvider) RequiresConfirmSend() bool { return false }

func (p *FakeProvider) Generate(ctx context.Context, msgs []Message, opts Options) (string, error) {
	last := ""
	for _, m := range msgs {
		if m.Role == "user" {
			last = m.Content
		}
	}
	if len(last) > 200 {
		last = last[:200]
	}
	return "[fake] " + last, nil
}

// StreamGenerate emits the answer in 16-character runs.
func (p *FakeProvider) StreamGenerate(ctx context.Context, msgs []Message, opts Options, onDelta func(string) error) (string, error) {
	answer, err := p.Generate(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	for _, part := range SplitRuns(answer, 16) {
		if err := ctx.Err(); err != nil {
			return answer, err
		}
		if err := onDelta(part); err != nil {
			return answer, err
		}
	}
	return answer, nil
}

// SplitRuns splits s into rune-safe pieces of at most n runes.
func SplitRuns(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
