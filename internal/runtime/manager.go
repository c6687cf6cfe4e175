package runtime

import (
	"sync"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Manager owns the three process-wide limiters and the currently applied
// runtime configuration. Apply resizes the limiters live; workers re-read
// the effective values between jobs.
type Manager struct {
	ASR   *Limiter
	LLM   *Limiter
	Heavy *Limiter

	ASRAcquireTimeout   time.Duration
	LLMAcquireTimeout   time.Duration
	HeavyAcquireTimeout time.Duration

	mu        sync.RWMutex
	effective Effective
	log       *logger.Logger
}

func NewManager(log *logger.Logger) *Manager {
	eff := EffectiveFrom(nil)
	m := &Manager{
		ASR:                 NewLimiter(eff.ASRConcurrency),
		LLM:                 NewLimiter(eff.LLMConcurrency),
		Heavy:               NewLimiter(eff.HeavyConcurrency),
		ASRAcquireTimeout:   time.Duration(envutil.Int("ASR_CONCURRENCY_TIMEOUT_SECONDS", 3)) * time.Second,
		LLMAcquireTimeout:   time.Duration(envutil.Int("LLM_CONCURRENCY_TIMEOUT_SECONDS", 3)) * time.Second,
		HeavyAcquireTimeout: time.Duration(envutil.Int("HEAVY_CONCURRENCY_TIMEOUT_SECONDS", 3)) * time.Second,
		effective:           eff,
		log:                 log,
	}
	return m
}

// Apply merges stored preferences and resizes the limiters.
func (m *Manager) Apply(stored map[string]any) Effective {
	eff := EffectiveFrom(stored)

	m.mu.Lock()
	changed := eff != m.effective
	m.effective = eff
	m.mu.Unlock()

	m.ASR.SetMax(eff.ASRConcurrency)
	m.LLM.SetMax(eff.LLMConcurrency)
	m.Heavy.SetMax(eff.HeavyConcurrency)

	if changed {
		m.log.Info("runtime profile applied",
			"profile", eff.Profile,
			"asr_concurrency", eff.ASRConcurrency,
			"llm_concurrency", eff.LLMConcurrency,
			"heavy_concurrency", eff.HeavyConcurrency,
			"llm_timeout_seconds", eff.LLMTimeoutSeconds)
	}
	return eff
}

func (m *Manager) Effective() Effective {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effective
}

func (m *Manager) LLMRequestTimeout() time.Duration {
	return time.Duration(m.Effective().LLMTimeoutSeconds) * time.Second
}

// Snapshot is the diagnostics payload for the concurrency endpoint.
func (m *Manager) Snapshot() map[string]any {
	return map[string]any{
		"asr":   m.ASR.Snapshot(),
		"llm":   m.LLM.Snapshot(),
		"heavy": m.Heavy.Snapshot(),
		"acquire_timeout_seconds": map[string]any{
			"asr":   m.ASRAcquireTimeout.Seconds(),
			"llm":   m.LLMAcquireTimeout.Seconds(),
			"heavy": m.HeavyAcquireTimeout.Seconds(),
		},
	}
}
