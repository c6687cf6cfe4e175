package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/ffmpeg"
	"github.com/openedge-labs/video-agent-backend/internal/platform/jpegx"
)

// KeyframeParams is the normalized parameter projection used both for
// execution and for idempotency gating: only the fields relevant to the
// chosen mode survive normalization.
type KeyframeParams struct {
	Mode            string
	IntervalSeconds float64
	SceneThreshold  float64
	MinGapSeconds   float64
	MaxFrames       int
	TargetWidth     int
}

// NormalizeKeyframeParams applies defaults and clamps. The returned map
// is the canonical projection compared for freshness.
func NormalizeKeyframeParams(p map[string]any) (KeyframeParams, map[string]any) {
	kp := KeyframeParams{
		Mode:            paramString(p, "mode", domain.KeyframeMethodInterval),
		IntervalSeconds: paramFloat(p, "interval_seconds", 10),
		SceneThreshold:  paramFloat(p, "scene_threshold", 0.3),
		MinGapSeconds:   paramFloat(p, "min_gap_seconds", 2.0),
		MaxFrames:       paramInt(p, "max_frames", 200),
		TargetWidth:     paramInt(p, "target_width", 0),
	}
	if kp.Mode != domain.KeyframeMethodScene {
		kp.Mode = domain.KeyframeMethodInterval
	}
	if kp.IntervalSeconds <= 0 {
		kp.IntervalSeconds = 10
	}
	if kp.SceneThreshold <= 0 || kp.SceneThreshold > 1 {
		kp.SceneThreshold = 0.3
	}
	if kp.MaxFrames < 1 {
		kp.MaxFrames = 1
	}
	if kp.MaxFrames > 500 {
		kp.MaxFrames = 500
	}

	norm := map[string]any{
		"mode":       kp.Mode,
		"max_frames": float64(kp.MaxFrames),
	}
	if kp.Mode == domain.KeyframeMethodScene {
		norm["scene_threshold"] = kp.SceneThreshold
		norm["min_gap_seconds"] = kp.MinGapSeconds
	} else {
		norm["interval_seconds"] = kp.IntervalSeconds
	}
	if kp.TargetWidth > 0 {
		norm["target_width"] = float64(kp.TargetWidth)
	}
	return kp, norm
}

type FramePick struct {
	Time  float64
	Score *float64
}

// SelectSceneTimestamps picks up to maxFrames candidates in descending
// score order, skipping any within minGap of an already-picked one, then
// returns the keepers in ascending time order.
func SelectSceneTimestamps(cands []ffmpeg.SceneCandidate, maxFrames int, minGap float64) []FramePick {
	sorted := make([]ffmpeg.SceneCandidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Score > sorted[b].Score })

	var picked []FramePick
	for _, c := range sorted {
		if len(picked) >= maxFrames {
			break
		}
		tooClose := false
		for _, p := range picked {
			d := c.Time - p.Time
			if d < 0 {
				d = -d
			}
			if d < minGap {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		score := c.Score
		picked = append(picked, FramePick{Time: c.Time, Score: &score})
	}
	sort.Slice(picked, func(a, b int) bool { return picked[a].Time < picked[b].Time })
	return picked
}

// runKeyframes extracts JPEG stills either at a fixed interval or at
// detected scene changes, probing each file's dimensions from its SOF
// marker.
func (w *Worker) runKeyframes(ctx context.Context, r *jobRun) error {
	p := r.params()
	fromScratch := paramBool(p, "from_scratch", false)
	kp, norm := NormalizeKeyframeParams(p)
	videoID := r.job.VideoID

	video, err := w.repos.Videos.GetByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		return Coded("E_JOB_FAILED", "video %s not found", videoID)
	}

	dir := w.cfg.KeyframesDir(videoID)
	if fromScratch {
		if err := w.repos.Keyframes.DeleteForVideo(ctx, videoID); err != nil {
			return err
		}
		if err := w.repos.KeyframeIndexes.Delete(ctx, videoID); err != nil {
			return err
		}
		RemoveKeyframeImages(dir)
	}

	if video.Duration <= 0 {
		return Coded("E_VIDEO_DURATION_INVALID", "video %s has no positive duration", videoID)
	}

	paramsJSON, _ := json.Marshal(norm)
	if err := w.repos.KeyframeIndexes.Upsert(ctx, &domain.VideoKeyframeIndex{
		VideoID:  videoID,
		Status:   domain.ArtifactStatusRunning,
		Progress: 0,
		Message:  "selecting",
		Params:   paramsJSON,
	}); err != nil {
		return err
	}

	var picks []FramePick
	switch kp.Mode {
	case domain.KeyframeMethodScene:
		var cands []ffmpeg.SceneCandidate
		err := w.withLimiter(w.rt.Heavy, w.rt.HeavyAcquireTimeout, "HEAVY_CONCURRENCY_TIMEOUT", func() error {
			var serr error
			cands, serr = w.media.SceneChanges(ctx, video.FilePath, kp.SceneThreshold)
			return serr
		})
		if err != nil {
			return err
		}
		picks = SelectSceneTimestamps(cands, kp.MaxFrames, kp.MinGapSeconds)
	default:
		for t := 0.0; t < video.Duration && len(picks) < kp.MaxFrames; t += kp.IntervalSeconds {
			picks = append(picks, FramePick{Time: t})
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create keyframes dir: %w", err)
	}

	n := len(picks)
	for i, pk := range picks {
		if err := r.ensureSameRun(ctx); err != nil {
			return err
		}
		r.progress(ctx, float64(i)/float64(max(n, 1)), fmt.Sprintf("keyframe %d/%d", i+1, n))

		kid := uuid.NewString()
		outPath := filepath.Join(dir, kid+".jpg")
		err := w.withLimiter(w.rt.Heavy, w.rt.HeavyAcquireTimeout, "HEAVY_CONCURRENCY_TIMEOUT", func() error {
			return w.media.ExtractJPEG(ctx, video.FilePath, pk.Time, kp.TargetWidth, outPath)
		})
		if err != nil {
			return err
		}

		width, height, perr := jpegx.DimensionsFile(outPath)
		if perr != nil {
			r.log.Warn("keyframe dimension probe failed", "path", outPath, "error", perr)
		}
		if err := w.repos.Keyframes.Insert(ctx, &domain.Keyframe{
			ID:           kid,
			VideoID:      videoID,
			TimestampMS:  int64(pk.Time * 1000),
			ImageRelpath: filepath.Join("storage", "keyframes", videoID, kid+".jpg"),
			Method:       kp.Mode,
			Width:        width,
			Height:       height,
			Score:        pk.Score,
		}); err != nil {
			return err
		}
	}

	r.progress(ctx, 0.99, "finalizing")
	return w.repos.KeyframeIndexes.Upsert(ctx, &domain.VideoKeyframeIndex{
		VideoID:    videoID,
		Status:     domain.ArtifactStatusCompleted,
		Progress:   1.0,
		Message:    "completed",
		Params:     paramsJSON,
		FrameCount: n,
	})
}

// RemoveKeyframeImages deletes the *.jpg files in dir and keeps
// everything else.
func RemoveKeyframeImages(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".jpg") {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
