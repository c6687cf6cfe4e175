package jobs

import (
	"reflect"
	"testing"

	"github.com/openedge-labs/video-agent-backend/internal/platform/ffmpeg"
)

func TestNormalizeKeyframeParamsDefaults(t *testing.T) {
	kp, norm := NormalizeKeyframeParams(nil)
	if kp.Mode != "interval" || kp.IntervalSeconds != 10 || kp.MaxFrames != 200 {
		t.Fatalf("defaults: %+v", kp)
	}
	want := map[string]any{
		"mode":             "interval",
		"interval_seconds": float64(10),
		"max_frames":       float64(200),
	}
	if !reflect.DeepEqual(norm, want) {
		t.Fatalf("norm = %v, want %v", norm, want)
	}
}

func TestNormalizeKeyframeParamsClamps(t *testing.T) {
	kp, _ := NormalizeKeyframeParams(map[string]any{
		"mode":             "scene",
		"scene_threshold":  float64(1.5),
		"max_frames":       float64(9000),
		"interval_seconds": float64(-1),
	})
	if kp.SceneThreshold != 0.3 {
		t.Fatalf("scene_threshold = %v, want fallback 0.3", kp.SceneThreshold)
	}
	if kp.MaxFrames != 500 {
		t.Fatalf("max_frames = %d, want 500", kp.MaxFrames)
	}
	if kp.IntervalSeconds != 10 {
		t.Fatalf("interval_seconds = %v, want fallback 10", kp.IntervalSeconds)
	}

	kp, _ = NormalizeKeyframeParams(map[string]any{"max_frames": float64(0)})
	if kp.MaxFrames != 1 {
		t.Fatalf("max_frames = %d, want floor 1", kp.MaxFrames)
	}
}

func TestNormalizeKeyframeParamsProjection(t *testing.T) {
	// Interval mode drops scene-only fields, so an interval request with a
	// stray scene_threshold still matches a plain interval row.
	_, a := NormalizeKeyframeParams(map[string]any{"mode": "interval", "scene_threshold": 0.9})
	_, b := NormalizeKeyframeParams(map[string]any{"mode": "interval"})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("interval projections differ: %v vs %v", a, b)
	}

	_, scene := NormalizeKeyframeParams(map[string]any{"mode": "scene"})
	if _, ok := scene["interval_seconds"]; ok {
		t.Fatal("scene projection must not carry interval_seconds")
	}
	if _, ok := scene["scene_threshold"]; !ok {
		t.Fatal("scene projection must carry scene_threshold")
	}

	// Unknown modes fall back to interval.
	kp, _ := NormalizeKeyframeParams(map[string]any{"mode": "mosaic"})
	if kp.Mode != "interval" {
		t.Fatalf("mode = %q, want interval", kp.Mode)
	}

	_, withWidth := NormalizeKeyframeParams(map[string]any{"target_width": float64(640)})
	if withWidth["target_width"] != float64(640) {
		t.Fatalf("target_width missing from projection: %v", withWidth)
	}
}

func TestSelectSceneTimestamps(t *testing.T) {
	cands := []ffmpeg.SceneCandidate{
		{Time: 10, Score: 0.9},
		{Time: 11, Score: 0.8}, // within min gap of t=10
		{Time: 30, Score: 0.7},
		{Time: 50, Score: 0.95},
		{Time: 52, Score: 0.6}, // within min gap of t=50
	}
	picks := SelectSceneTimestamps(cands, 10, 3)
	if len(picks) != 3 {
		t.Fatalf("got %d picks, want 3: %+v", len(picks), picks)
	}
	// Ascending time order.
	for i := 1; i < len(picks); i++ {
		if picks[i].Time <= picks[i-1].Time {
			t.Fatalf("picks not sorted by time: %+v", picks)
		}
	}
	if picks[0].Time != 10 || picks[1].Time != 30 || picks[2].Time != 50 {
		t.Fatalf("unexpected picks: %+v", picks)
	}
	if picks[2].Score == nil || *picks[2].Score != 0.95 {
		t.Fatalf("score not carried: %+v", picks[2])
	}
}

func TestSelectSceneTimestampsMaxFrames(t *testing.T) {
	cands := []ffmpeg.SceneCandidate{
		{Time: 0, Score: 0.2},
		{Time: 100, Score: 0.9},
		{Time: 200, Score: 0.5},
	}
	picks := SelectSceneTimestamps(cands, 2, 1)
	if len(picks) != 2 {
		t.Fatalf("got %d picks, want 2", len(picks))
	}
	// The lowest-score candidate loses the budget.
	if picks[0].Time != 100 || picks[1].Time != 200 {
		t.Fatalf("unexpected picks: %+v", picks)
	}
}

func TestSelectSceneTimestampsEmpty(t *testing.T) {
	if picks := SelectSceneTimestamps(nil, 5, 2); len(picks) != 0 {
		t.Fatalf("expected no picks, got %+v", picks)
	}
}
