package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

// Config identifies one loaded recognizer. Changing device or compute
// type forces a reload.
type Config struct {
	Model       string
	Device      string
	ComputeType string
	Language    string
}

type Engine interface {
	Transcribe(ctx context.Context, wavPath string) ([]transcript.Segment, error)
}

// CLIEngine shells out to a whisper-style binary that prints
// {"segments":[{start,end,text}...]} on stdout.
type CLIEngine struct {
	bin string
	cfg Config
	log *logger.Logger
}

func NewCLIEngine(cfg Config, log *logger.Logger) *CLIEngine {
	return &CLIEngine{
		bin: envutil.Str("ASR_BIN", "whisper-cli"),
		cfg: cfg,
		log: log,
	}
}

type cliOutput struct {
	Segments []transcript.Segment `json:"segments"`
}

func (e *CLIEngine) Transcribe(ctx context.Context, wavPath string) ([]transcript.Segment, error) {
	args := []string{
		"--model", e.cfg.Model,
		"--device", e.cfg.Device,
		"--compute-type", e.cfg.ComputeType,
		"--language", e.cfg.Language,
		"--output-json",
		wavPath,
	}
	cmd := exec.CommandContext(ctx, e.bin, args...)
	out, err := cmd.Output()
	if err != nil {
		detail := ""
		if ee, ok := err.(*exec.ExitError); ok {
			detail = string(ee.Stderr)
			if len(detail) > 2000 {
				detail = detail[:2000]
			}
		}
		return nil, fmt.Errorf("asr invocation failed: %w; stderr=%s", err, detail)
	}
	var decoded cliOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		return nil, fmt.Errorf("decode asr output: %w", err)
	}
	return decoded.Segments, nil
}

// Holder lazily constructs the engine on first use and reconstructs it
// under the lock when the requested configuration changes.
type Holder struct {
	mu      sync.Mutex
	cfg     Config
	engine  Engine
	factory func(Config) Engine
}

func NewHolder(factory func(Config) Engine) *Holder {
	return &Holder{factory: factory}
}

func (h *Holder) Get(cfg Config) Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil || h.cfg != cfg {
		h.engine = h.factory(cfg)
		h.cfg = cfg
	}
	return h.engine
}
