package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Tools shells out to ffmpeg/ffprobe for everything media-shaped:
// duration probing, 16 kHz mono WAV slices, JPEG frame grabs, and
// scene-change detection.
type Tools struct {
	ffmpegBin  string
	ffprobeBin string
	log        *logger.Logger
}

func NewTools(log *logger.Logger) *Tools {
	return &Tools{
		ffmpegBin:  envutil.Str("FFMPEG_BIN", "ffmpeg"),
		ffprobeBin: envutil.Str("FFPROBE_BIN", "ffprobe"),
		log:        log,
	}
}

// ProbeDuration asks ffprobe for the container duration, falling back to
// parsing the "Duration:" banner from ffmpeg when ffprobe fails.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64); perr == nil && d > 0 {
			return d, nil
		}
	}

	cmd = exec.CommandContext(ctx, t.ffmpegBin, "-i", path)
	banner, _ := cmd.CombinedOutput()
	if d, ok := parseDurationBanner(string(banner)); ok {
		return d, nil
	}
	return 0, fmt.Errorf("probe duration of %s: %w", path, err)
}

func parseDurationBanner(out string) (float64, bool) {
	idx := strings.Index(out, "Duration:")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(out[idx+len("Duration:"):])
	if cut := strings.IndexByte(rest, ','); cut >= 0 {
		rest = rest[:cut]
	}
	parts := strings.Split(strings.TrimSpace(rest), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + s, true
}

// ExtractWAV writes a 16 kHz mono WAV slice [start, start+dur) of the
// source media.
func (t *Tools) ExtractWAV(ctx context.Context, src string, start, dur float64, outPath string) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", dur),
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	}
	cmd := exec.CommandContext(ctx, t.ffmpegBin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg wav extract failed: %w; out=%s", err, truncate(string(out), 2000))
	}
	return nil
}

// ExtractJPEG grabs a single frame at ts, optionally scaled to
// targetWidth (height follows aspect).
func (t *Tools) ExtractJPEG(ctx context.Context, src string, ts float64, targetWidth int, outPath string) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", src,
		"-frames:v", "1",
	}
	if targetWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", targetWidth))
	}
	args = append(args, "-q:v", "2", outPath)
	cmd := exec.CommandContext(ctx, t.ffmpegBin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg frame extract failed: %w; out=%s", err, truncate(string(out), 2000))
	}
	return nil
}

type SceneCandidate struct {
	Time  float64
	Score float64
}

// SceneChanges runs the scene filter and parses (pts_time, scene_score)
// pairs from the metadata printer.
func (t *Tools) SceneChanges(ctx context.Context, src string, threshold float64) ([]SceneCandidate, error) {
	vf := fmt.Sprintf("select='gt(scene,%g)',metadata=print", threshold)
	cmd := exec.CommandContext(ctx, t.ffmpegBin,
		"-i", src,
		"-vf", vf,
		"-an",
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	candidates := parseSceneOutput(string(out))
	if err != nil && len(candidates) == 0 {
		return nil, fmt.Errorf("ffmpeg scene detect failed: %w; out=%s", err, truncate(string(out), 2000))
	}
	return candidates, nil
}

func parseSceneOutput(out string) []SceneCandidate {
	var (
		candidates []SceneCandidate
		lastTime   = -1.0
	)
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "pts_time:"); idx >= 0 {
			field := strings.Fields(line[idx+len("pts_time:"):])
			if len(field) > 0 {
				if v, err := strconv.ParseFloat(field[0], 64); err == nil {
					lastTime = v
				}
			}
			continue
		}
		if idx := strings.Index(line, "lavfi.scene_score="); idx >= 0 && lastTime >= 0 {
			raw := strings.TrimSpace(line[idx+len("lavfi.scene_score="):])
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				candidates = append(candidates, SceneCandidate{Time: lastTime, Score: v})
			}
			lastTime = -1
		}
	}
	return candidates
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
