package runtime

import "testing"

func TestNormalizeProfile(t *testing.T) {
	cases := map[string]string{
		"cpu":             ProfileCPU,
		"balanced":        ProfileBalanced,
		"gpu_recommended": ProfileGPURecommended,
		"gpu":             ProfileGPURecommended,
		"":                ProfileCPU,
		"something-else":  ProfileCPU,
	}
	for in, want := range cases {
		if got := NormalizeProfile(in); got != want {
			t.Fatalf("NormalizeProfile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEffectiveFromDefaults(t *testing.T) {
	eff := EffectiveFrom(map[string]any{})
	if eff.Profile != ProfileCPU {
		t.Fatalf("profile = %q", eff.Profile)
	}
	if eff.ASRConcurrency != 1 || eff.LLMConcurrency != 1 || eff.HeavyConcurrency != 1 {
		t.Fatalf("default concurrencies = %d/%d/%d, want 1/1/1", eff.ASRConcurrency, eff.LLMConcurrency, eff.HeavyConcurrency)
	}
	if eff.ASRDevice != "cpu" || eff.ASRComputeType != "int8" {
		t.Fatalf("asr device/compute = %s/%s", eff.ASRDevice, eff.ASRComputeType)
	}
}

func TestEffectiveFromGPUProfile(t *testing.T) {
	eff := EffectiveFrom(map[string]any{"profile": "gpu"})
	if eff.Profile != ProfileGPURecommended {
		t.Fatalf("profile = %q", eff.Profile)
	}
	if eff.ASRDevice != "cuda" || eff.ASRComputeType != "float16" {
		t.Fatalf("asr device/compute = %s/%s, want cuda/float16", eff.ASRDevice, eff.ASRComputeType)
	}
}

func TestEffectiveFromClamps(t *testing.T) {
	// Stored prefs come back from JSON, so numbers are float64.
	eff := EffectiveFrom(map[string]any{
		"asr_concurrency":     float64(-3),
		"llm_concurrency":     float64(4),
		"llm_timeout_seconds": float64(1),
	})
	if eff.ASRConcurrency != 0 {
		t.Fatalf("asr_concurrency = %d, want clamp to 0", eff.ASRConcurrency)
	}
	if eff.LLMConcurrency != 4 {
		t.Fatalf("llm_concurrency = %d, want 4", eff.LLMConcurrency)
	}
	if eff.LLMTimeoutSeconds != 5 {
		t.Fatalf("llm_timeout_seconds = %d, want clamp to 5", eff.LLMTimeoutSeconds)
	}
}

func TestEffectiveFromOverrides(t *testing.T) {
	eff := EffectiveFrom(map[string]any{
		"asr_device":       "cuda",
		"asr_compute_type": "float32",
		"asr_model":        "large-v3",
	})
	if eff.ASRDevice != "cuda" || eff.ASRComputeType != "float32" || eff.ASRModel != "large-v3" {
		t.Fatalf("overrides not applied: %+v", eff)
	}
}
