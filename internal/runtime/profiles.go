package runtime

import (
	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
)

const (
	ProfileCPU            = "cpu"
	ProfileBalanced       = "balanced"
	ProfileGPURecommended = "gpu_recommended"
)

type profileDefaults struct {
	ASRConcurrency   int
	LLMConcurrency   int
	HeavyConcurrency int
	ASRDevice        string
	ASRComputeType   string
}

var profiles = map[string]profileDefaults{
	ProfileCPU:            {1, 1, 1, "cpu", "int8"},
	ProfileBalanced:       {1, 1, 1, "cpu", "int8"},
	ProfileGPURecommended: {1, 1, 1, "cuda", "float16"},
}

// Effective is the merged runtime configuration: stored preferences over
// profile defaults, clamped.
type Effective struct {
	Profile           string `json:"profile"`
	ASRConcurrency    int    `json:"asr_concurrency"`
	LLMConcurrency    int    `json:"llm_concurrency"`
	HeavyConcurrency  int    `json:"heavy_concurrency"`
	LLMTimeoutSeconds int    `json:"llm_timeout_seconds"`
	ASRDevice         string `json:"asr_device"`
	ASRComputeType    string `json:"asr_compute_type"`
	ASRModel          string `json:"asr_model"`
}

// NormalizeProfile maps the legacy "gpu" alias and unknown names onto
// supported profiles.
func NormalizeProfile(name string) string {
	switch name {
	case "gpu":
		return ProfileGPURecommended
	case ProfileCPU, ProfileBalanced, ProfileGPURecommended:
		return name
	default:
		return ProfileCPU
	}
}

// EffectiveFrom merges stored preferences (JSON-decoded, so numbers are
// float64) over the profile defaults. Concurrency values clamp at zero,
// the LLM timeout at five seconds.
func EffectiveFrom(stored map[string]any) Effective {
	profile := NormalizeProfile(asString(stored["profile"]))
	base := profiles[profile]

	eff := Effective{
		Profile:           profile,
		ASRConcurrency:    base.ASRConcurrency,
		LLMConcurrency:    base.LLMConcurrency,
		HeavyConcurrency:  base.HeavyConcurrency,
		LLMTimeoutSeconds: envutil.Int("LLM_REQUEST_TIMEOUT_SECONDS", 600),
		ASRDevice:         base.ASRDevice,
		ASRComputeType:    base.ASRComputeType,
		ASRModel:          envutil.Str("ASR_MODEL", "small"),
	}

	if v, ok := asInt(stored["asr_concurrency"]); ok {
		eff.ASRConcurrency = clampMin(v, 0)
	}
	if v, ok := asInt(stored["llm_concurrency"]); ok {
		eff.LLMConcurrency = clampMin(v, 0)
	}
	if v, ok := asInt(stored["heavy_concurrency"]); ok {
		eff.HeavyConcurrency = clampMin(v, 0)
	}
	if v, ok := asInt(stored["llm_timeout_seconds"]); ok {
		eff.LLMTimeoutSeconds = clampMin(v, 5)
	}
	if v := asString(stored["asr_device"]); v != "" {
		eff.ASRDevice = v
	}
	if v := asString(stored["asr_compute_type"]); v != "" {
		eff.ASRComputeType = v
	}
	if v := asString(stored["asr_model"]); v != "" {
		eff.ASRModel = v
	}
	return eff
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	default:
		return 0, false
	}
}

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}
