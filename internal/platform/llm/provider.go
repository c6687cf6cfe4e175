package llm

import (
	"context"
	"sort"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call generation settings resolved from stored
// preferences.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Provider is the capability set the summarize pipeline and chat endpoint
// depend on. Remote providers gate outbound text behind confirm_send.
type Provider interface {
	Name() string
	RequiresConfirmSend() bool
	Generate(ctx context.Context, msgs []Message, opts Options) (string, error)
	StreamGenerate(ctx context.Context, msgs []Message, opts Options, onDelta func(delta string) error) (string, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Names lists registered providers sorted, with "none" always first.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers)+1)
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return append([]string{"none"}, out...)
}
