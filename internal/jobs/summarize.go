package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/openedge-labs/video-agent-backend/internal/chunking"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/llm"
)

const (
	mapInputCharCap    = 12000
	reduceInputCharCap = 18000
)

type segmentSummary struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Summary   string  `json:"summary"`
}

// runSummarize is map-reduce over transcript windows: per-window
// summaries, a Markdown reduction, and a strictly-JSON outline with a
// permissive parse and one fix-up retry.
func (w *Worker) runSummarize(ctx context.Context, r *jobRun) error {
	p := r.params()
	fromScratch := paramBool(p, "from_scratch", false)
	cp := chunkParamsFrom(p, chunking.DefaultSummaryParams())
	videoID := r.job.VideoID

	prefs, err := w.repos.Prefs.GetLLM(ctx)
	if err != nil {
		return err
	}
	providerName, _ := prefs["provider"].(string)
	if providerName == "" || providerName == "none" {
		return Coded("E_JOB_FAILED", "no llm provider configured for summarize")
	}
	provider := w.llms.Get(providerName)
	if provider == nil {
		return Coded("E_JOB_FAILED", "llm provider %q not available", providerName)
	}
	if provider.RequiresConfirmSend() {
		return Coded("E_JOB_FAILED", "provider %q requires per-request confirmation and cannot run in background summarize", providerName)
	}

	if fromScratch {
		if err := w.repos.Summaries.Delete(ctx, videoID); err != nil {
			return err
		}
	}

	segs, hash, err := w.loadTranscript(videoID)
	if err != nil {
		var coded *CodedError
		if errors.As(err, &coded) && coded.Code == "TRANSCRIPT_NOT_FOUND" {
			_ = w.repos.Summaries.Upsert(ctx, &domain.VideoSummary{
				VideoID:      videoID,
				Status:       domain.ArtifactStatusFailed,
				Message:      "failed",
				ErrorCode:    "TRANSCRIPT_NOT_FOUND",
				ErrorMessage: err.Error(),
			})
		}
		return err
	}

	windows := chunking.TimeChunks(segs, cp)
	if len(windows) == 0 {
		return Coded("E_CHUNKING_FAILED", "no summary windows for video %s", videoID)
	}

	lang := resolveOutputLanguage(paramString(p, "language", asPrefString(prefs, "output_language")), windows[0].Text)

	paramsJSON, _ := json.Marshal(map[string]any{
		"target_window_seconds": cp.TargetWindow,
		"max_window_seconds":    cp.MaxWindow,
		"min_window_seconds":    cp.MinWindow,
		"overlap_seconds":       cp.Overlap,
		"language":              lang,
		"provider":              providerName,
	})
	if err := w.repos.Summaries.Upsert(ctx, &domain.VideoSummary{
		VideoID:        videoID,
		Status:         domain.ArtifactStatusRunning,
		Progress:       0.05,
		Message:        "summarizing",
		TranscriptHash: hash,
		Params:         paramsJSON,
	}); err != nil {
		return err
	}

	opts := llm.Options{
		Model:       asPrefString(prefs, "model"),
		Temperature: asPrefFloat(prefs, "temperature", 0.2),
		MaxTokens:   asPrefInt(prefs, "max_tokens", 512),
		Timeout:     w.rt.LLMRequestTimeout(),
	}

	// Map phase.
	var summaries []segmentSummary
	n := len(windows)
	for i, win := range windows {
		if err := r.ensureSameRun(ctx); err != nil {
			return err
		}
		msgs := mapPrompt(lang, win)
		var out string
		err := w.withLimiter(w.rt.LLM, w.rt.LLMAcquireTimeout, "LLM_CONCURRENCY_TIMEOUT", func() error {
			var gerr error
			out, gerr = provider.Generate(ctx, msgs, opts)
			return gerr
		})
		if err != nil {
			return err
		}
		summaries = append(summaries, segmentSummary{StartTime: win.Start, EndTime: win.End, Summary: strings.TrimSpace(out)})

		prog := 0.05 + 0.7*float64(i+1)/float64(n)
		raw, _ := json.Marshal(summaries)
		_ = w.repos.Summaries.Update(ctx, videoID, map[string]any{
			"segment_summaries": raw,
			"progress":          prog,
			"message":           fmt.Sprintf("summarizing %d/%d", i+1, n),
		})
		r.progress(ctx, prog, fmt.Sprintf("summarizing %d/%d", i+1, n))
	}

	// Reduce phase.
	if err := r.ensureSameRun(ctx); err != nil {
		return err
	}
	r.progress(ctx, 0.8, "reducing")
	summariesJSON, _ := json.Marshal(summaries)
	var markdown string
	err = w.withLimiter(w.rt.LLM, w.rt.LLMAcquireTimeout, "LLM_CONCURRENCY_TIMEOUT", func() error {
		var gerr error
		markdown, gerr = provider.Generate(ctx, reducePrompt(lang, truncate(string(summariesJSON), reduceInputCharCap)), opts)
		return gerr
	})
	if err != nil {
		return err
	}

	// Outline phase.
	if err := r.ensureSameRun(ctx); err != nil {
		return err
	}
	r.progress(ctx, 0.9, "outline")
	outline := w.buildOutline(ctx, r, provider, opts, lang, truncate(string(summariesJSON), reduceInputCharCap))

	segmentsJSON, _ := json.Marshal(summaries)
	return w.repos.Summaries.Upsert(ctx, &domain.VideoSummary{
		VideoID:          videoID,
		Status:           domain.ArtifactStatusCompleted,
		Progress:         1.0,
		Message:          "completed",
		TranscriptHash:   hash,
		Params:           paramsJSON,
		SegmentSummaries: segmentsJSON,
		SummaryMarkdown:  strings.TrimSpace(markdown),
		Outline:          datatypes.JSON(outline),
	})
}

func (w *Worker) buildOutline(ctx context.Context, r *jobRun, provider llm.Provider, opts llm.Options, lang, summariesJSON string) json.RawMessage {
	var raw string
	err := w.withLimiter(w.rt.LLM, w.rt.LLMAcquireTimeout, "LLM_CONCURRENCY_TIMEOUT", func() error {
		var gerr error
		raw, gerr = provider.Generate(ctx, outlinePrompt(lang, summariesJSON), opts)
		return gerr
	})
	if err != nil {
		r.log.Warn("outline generation failed", "error", err)
		return mustRawJSON(map[string]string{"raw": ""})
	}

	if parsed, ok := ParseLLMJSON(raw); ok {
		return parsed
	}

	// One fix-up round trip, then give up and store the raw text.
	var fixed string
	err = w.withLimiter(w.rt.LLM, w.rt.LLMAcquireTimeout, "LLM_CONCURRENCY_TIMEOUT", func() error {
		var gerr error
		fixed, gerr = provider.Generate(ctx, fixJSONPrompt(raw), opts)
		return gerr
	})
	if err == nil {
		if parsed, ok := ParseLLMJSON(fixed); ok {
			return parsed
		}
	}
	return mustRawJSON(map[string]string{"raw": raw})
}

// ParseLLMJSON accepts raw JSON, JSON inside a fenced code block, or the
// substring between the first [ and last ] (or { and }).
func ParseLLMJSON(text string) (json.RawMessage, bool) {
	candidates := []string{strings.TrimSpace(text)}

	if stripped := stripCodeFence(text); stripped != "" {
		candidates = append(candidates, stripped)
	}
	if sub := bracketSubstring(text, '[', ']'); sub != "" {
		candidates = append(candidates, sub)
	}
	if sub := bracketSubstring(text, '{', '}'); sub != "" {
		candidates = append(candidates, sub)
	}

	for _, cand := range candidates {
		var decoded any
		if err := json.Unmarshal([]byte(cand), &decoded); err == nil {
			switch decoded.(type) {
			case []any, map[string]any:
				return json.RawMessage(cand), true
			}
		}
	}
	return nil, false
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return ""
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}

func bracketSubstring(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func mustRawJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

// resolveOutputLanguage turns zh|en|auto into a concrete language; auto
// sniffs the head of the first window for CJK ideographs.
func resolveOutputLanguage(requested, firstChunk string) string {
	switch requested {
	case "zh", "en":
		return requested
	default:
		if chunking.HasCJK(firstChunk, 400) {
			return "zh"
		}
		return "en"
	}
}

func mapPrompt(lang string, win chunking.Chunk) []llm.Message {
	text := win.Text
	if runes := []rune(text); len(runes) > mapInputCharCap {
		text = string(runes[:mapInputCharCap])
	}
	if lang == "zh" {
		return []llm.Message{
			{Role: "system", Content: "你是一个视频内容整理助手。请用简洁的中文总结给定时间段的视频文字稿，保留关键事实。"},
			{Role: "user", Content: fmt.Sprintf("时间段 %.1fs - %.1fs 的文字稿如下，请总结要点：\n\n%s", win.Start, win.End, text)},
		}
	}
	return []llm.Message{
		{Role: "system", Content: "You are a video content assistant. Summarize the transcript excerpt concisely, keeping the key facts."},
		{Role: "user", Content: fmt.Sprintf("Transcript for %.1fs - %.1fs follows. Summarize the main points:\n\n%s", win.Start, win.End, text)},
	}
}

func reducePrompt(lang, summariesJSON string) []llm.Message {
	if lang == "zh" {
		return []llm.Message{
			{Role: "system", Content: "你是一个视频内容整理助手。基于分段摘要生成一份结构化的 Markdown 总结。"},
			{Role: "user", Content: "以下是各时间段的摘要（JSON），请合并为一篇 Markdown 总结：\n\n" + summariesJSON},
		}
	}
	return []llm.Message{
		{Role: "system", Content: "You are a video content assistant. Produce one structured Markdown summary from the per-segment summaries."},
		{Role: "user", Content: "Here are the per-segment summaries (JSON). Merge them into one Markdown summary:\n\n" + summariesJSON},
	}
}

func outlinePrompt(lang, summariesJSON string) []llm.Message {
	if lang == "zh" {
		return []llm.Message{
			{Role: "system", Content: "你只输出 JSON，不要任何解释或代码块。"},
			{Role: "user", Content: "基于以下分段摘要，输出大纲 JSON：一个数组，元素为 {\"title\", \"start_time\", \"end_time\", \"bullets\"}。\n\n" + summariesJSON},
		}
	}
	return []llm.Message{
		{Role: "system", Content: "Output JSON only, with no prose and no code fences."},
		{Role: "user", Content: "From the per-segment summaries below, output an outline: a JSON array of {\"title\", \"start_time\", \"end_time\", \"bullets\"}.\n\n" + summariesJSON},
	}
}

func fixJSONPrompt(broken string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: "Output JSON only."},
		{Role: "user", Content: "Fix the following into valid JSON, preserving its content:\n\n" + broken},
	}
}

func asPrefString(prefs map[string]any, key string) string {
	s, _ := prefs[key].(string)
	return s
}

func asPrefFloat(prefs map[string]any, key string, def float64) float64 {
	if v, ok := prefs[key].(float64); ok {
		return v
	}
	return def
}

func asPrefInt(prefs map[string]any, key string, def int) int {
	if v, ok := prefs[key].(float64); ok {
		return int(v)
	}
	return def
}
