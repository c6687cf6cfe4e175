package jobs

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/openedge-labs/video-agent-backend/internal/platform/asr"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

// runTranscribe walks the video in fixed-size windows, extracting a WAV
// slice and recognizing it under the ASR limiter. A resumed run drops
// segments whose absolute end falls inside the already-written log.
func (w *Worker) runTranscribe(ctx context.Context, r *jobRun) error {
	p := r.params()
	segmentSeconds := paramFloat(p, "segment_seconds", w.cfg.SegmentSeconds)
	overlapSeconds := paramFloat(p, "overlap_seconds", w.cfg.OverlapSeconds)
	fromScratch := paramBool(p, "from_scratch", false)

	video, err := w.repos.Videos.GetByID(ctx, r.job.VideoID)
	if err != nil {
		return err
	}
	if video == nil {
		return Coded("E_JOB_FAILED", "video %s not found", r.job.VideoID)
	}

	if fromScratch {
		if err := w.store.Delete(video.ID); err != nil {
			return err
		}
	}

	lastEnd, err := w.store.LastEndTime(video.ID)
	if err != nil {
		return err
	}
	resumeFrom := lastEnd
	start := 0.0
	if lastEnd > 0 {
		start = math.Max(0, lastEnd-overlapSeconds)
	}

	duration := video.Duration
	eff := w.rt.Effective()
	engine := w.asr.Get(asr.Config{
		Model:       eff.ASRModel,
		Device:      eff.ASRDevice,
		ComputeType: eff.ASRComputeType,
		Language:    w.cfg.ASRLanguage,
	})

	chunkNum := 0
	for start < duration {
		chunkDur := math.Min(segmentSeconds, duration-start)
		if chunkDur <= 0 {
			break
		}
		chunkNum++

		if err := r.ensureSameRun(ctx); err != nil {
			return err
		}
		prog := math.Min(0.999, start/math.Max(duration, 1e-6))
		r.progress(ctx, prog, fmt.Sprintf("extract_audio chunk=%d start=%.1fs", chunkNum, start))

		segs, err := w.transcribeWindow(ctx, r, engine, video.FilePath, start, chunkDur, chunkNum, prog)
		if err != nil {
			return err
		}

		var abs []transcript.Segment
		for _, s := range segs {
			seg := transcript.Segment{Start: s.Start + start, End: s.End + start, Text: s.Text}
			if seg.End <= resumeFrom {
				continue
			}
			abs = append(abs, seg)
		}
		if err := w.store.Append(video.ID, abs); err != nil {
			return err
		}

		start += chunkDur
		prog = math.Min(0.999, start/math.Max(duration, 1e-6))
		r.progress(ctx, prog, fmt.Sprintf("chunk_done chunk=%d", chunkNum))
	}

	r.progress(ctx, 0.999, "finalizing")
	return nil
}

// transcribeWindow owns the scoped temp dir for one window.
func (w *Worker) transcribeWindow(ctx context.Context, r *jobRun, engine asr.Engine, srcPath string, start, dur float64, chunkNum int, prog float64) ([]transcript.Segment, error) {
	tmpDir, err := os.MkdirTemp("", "transcribe-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "slice.wav")
	if err := w.media.ExtractWAV(ctx, srcPath, start, dur, wavPath); err != nil {
		return nil, err
	}

	if err := r.ensureSameRun(ctx); err != nil {
		return nil, err
	}
	r.progress(ctx, prog, fmt.Sprintf("transcribe chunk=%d", chunkNum))

	var segs []transcript.Segment
	err = w.withLimiter(w.rt.ASR, w.rt.ASRAcquireTimeout, "ASR_CONCURRENCY_TIMEOUT", func() error {
		out, aerr := engine.Transcribe(ctx, wavPath)
		if aerr != nil {
			return aerr
		}
		segs = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segs, nil
}
