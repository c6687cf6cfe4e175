package jobs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseLLMJSONRaw(t *testing.T) {
	raw, ok := ParseLLMJSON(`[{"title":"Intro","start_time":0}]`)
	if !ok {
		t.Fatal("raw JSON array should parse")
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || len(out) != 1 {
		t.Fatalf("decoded %v err=%v", out, err)
	}
}

func TestParseLLMJSONFenced(t *testing.T) {
	text := "```json\n{\"summary\": \"ok\"}\n```"
	raw, ok := ParseLLMJSON(text)
	if !ok {
		t.Fatalf("fenced JSON should parse: %q", text)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out["summary"] != "ok" {
		t.Fatalf("decoded %v err=%v", out, err)
	}
}

func TestParseLLMJSONBracketSubstring(t *testing.T) {
	text := `Here is the outline you asked for: [{"title":"A"},{"title":"B"}] hope it helps!`
	raw, ok := ParseLLMJSON(text)
	if !ok {
		t.Fatal("bracket substring should parse")
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || len(out) != 2 {
		t.Fatalf("decoded %v err=%v", out, err)
	}
}

func TestParseLLMJSONRejectsScalars(t *testing.T) {
	for _, text := range []string{"", "plain prose, no json", `"just a string"`, "42"} {
		if _, ok := ParseLLMJSON(text); ok {
			t.Fatalf("%q should not parse as an object/array", text)
		}
	}
}

func TestResolveOutputLanguage(t *testing.T) {
	if got := resolveOutputLanguage("zh", "whatever"); got != "zh" {
		t.Fatalf("explicit zh: %q", got)
	}
	if got := resolveOutputLanguage("en", "这是中文"); got != "en" {
		t.Fatalf("explicit en: %q", got)
	}
	if got := resolveOutputLanguage("auto", "这是一个关于机器学习的视频"); got != "zh" {
		t.Fatalf("auto on CJK: %q", got)
	}
	if got := resolveOutputLanguage("auto", "this is an english transcript"); got != "en" {
		t.Fatalf("auto on ascii: %q", got)
	}
	if got := resolveOutputLanguage("", "mixed but ascii"); got != "en" {
		t.Fatalf("empty request: %q", got)
	}
}

func TestClassifyError(t *testing.T) {
	if got := classifyError("transcribe", errors.New("whisper exited")); got != "E_ASR_FAILED" {
		t.Fatalf("transcribe default: %q", got)
	}
	if got := classifyError("index", errors.New("boom")); got != "E_JOB_FAILED" {
		t.Fatalf("generic default: %q", got)
	}
	if got := classifyError("index", Coded("E_VECTOR_STORE_UNAVAILABLE", "chroma down")); got != "E_VECTOR_STORE_UNAVAILABLE" {
		t.Fatalf("coded passthrough: %q", got)
	}
	for _, code := range []string{"ASR_CONCURRENCY_TIMEOUT", "LLM_CONCURRENCY_TIMEOUT", "HEAVY_CONCURRENCY_TIMEOUT"} {
		if got := classifyError("summarize", Coded(code, "limiter full")); got != "E_CONCURRENCY_TIMEOUT" {
			t.Fatalf("%s: %q", code, got)
		}
	}
	// Coded errors keep their code even when wrapped.
	wrapped := errors.Join(errors.New("outer"), Coded("E_VIDEO_DURATION_INVALID", "bad duration"))
	if got := classifyError("keyframes", wrapped); got != "E_VIDEO_DURATION_INVALID" {
		t.Fatalf("wrapped coded: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Fatalf("got %q", got)
	}
}
