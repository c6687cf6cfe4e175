package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/chunking"
	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/asr"
	"github.com/openedge-labs/video-agent-backend/internal/platform/chroma"
	"github.com/openedge-labs/video-agent-backend/internal/platform/embed"
	"github.com/openedge-labs/video-agent-backend/internal/platform/ffmpeg"
	"github.com/openedge-labs/video-agent-backend/internal/platform/llm"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	rt "github.com/openedge-labs/video-agent-backend/internal/runtime"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

const (
	idleSleep          = 500 * time.Millisecond
	applyPrefsInterval = 2 * time.Second
)

// Config carries the pipeline defaults and path resolution the worker
// needs from the application.
type Config struct {
	KeyframesDir      func(videoID string) string
	ASRLanguage       string
	SegmentSeconds    float64
	OverlapSeconds    float64
	DefaultEmbedModel string
	DefaultEmbedDim   int
	IndexWindows      chunking.Params
}

// Worker is the single long-lived actor draining the job queue. It
// claims pending jobs FIFO and dispatches to one of the four pipelines.
type Worker struct {
	repos   *repos.Repos
	store   *transcript.Store
	vectors chroma.Store
	embed   embed.Func
	llms    *llm.Registry
	media   *ffmpeg.Tools
	asr     *asr.Holder
	rt      *rt.Manager
	cfg     Config
	log     *logger.Logger
}

func NewWorker(
	r *repos.Repos,
	store *transcript.Store,
	vectors chroma.Store,
	embedFn embed.Func,
	llms *llm.Registry,
	media *ffmpeg.Tools,
	asrHolder *asr.Holder,
	runtimeMgr *rt.Manager,
	cfg Config,
	log *logger.Logger,
) *Worker {
	return &Worker{
		repos:   r,
		store:   store,
		vectors: vectors,
		embed:   embedFn,
		llms:    llms,
		media:   media,
		asr:     asrHolder,
		rt:      runtimeMgr,
		cfg:     cfg,
		log:     log.With("component", "JobWorker"),
	}
}

// Run loops until the context is cancelled, re-applying runtime
// preferences at most every two seconds.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("job worker started")
	var lastApply time.Time
	for {
		select {
		case <-ctx.Done():
			w.log.Info("job worker stopping")
			return ctx.Err()
		default:
		}

		if time.Since(lastApply) >= applyPrefsInterval {
			if stored, err := w.repos.Prefs.GetRuntime(ctx); err == nil {
				w.rt.Apply(stored)
			} else {
				w.log.Warn("runtime preferences unavailable", "error", err)
			}
			lastApply = time.Now()
		}

		job, err := w.repos.Jobs.FetchNextPending(ctx)
		if err != nil {
			w.log.Error("fetch next pending job failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		claimed, err := w.repos.Jobs.Claim(ctx, job.ID)
		if err != nil {
			w.log.Error("claim failed", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		w.runJob(ctx, job.ID)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(idleSleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) runJob(ctx context.Context, jobID string) {
	job, err := w.repos.Jobs.GetByID(ctx, jobID)
	if err != nil || job == nil || job.StartedAt == nil {
		w.log.Error("claimed job unreadable", "job_id", jobID, "error", err)
		_ = w.repos.Jobs.Update(ctx, jobID, map[string]any{
			"status":        domain.JobStatusFailed,
			"error_code":    "E_INTERNAL",
			"error_message": "claimed job missing its run epoch",
		})
		return
	}

	run := &jobRun{
		w:     w,
		job:   job,
		epoch: *job.StartedAt,
		log:   w.log.With("job_id", job.ID, "job_type", job.JobType, "video_id", job.VideoID),
	}
	run.log.Info("job claimed")

	_ = w.repos.Jobs.Update(ctx, job.ID, map[string]any{"progress": 0.0, "message": "starting"})
	if job.JobType == domain.JobTypeTranscribe {
		_ = w.repos.Videos.SetStatus(ctx, job.VideoID, domain.VideoStatusProcessing)
	}

	var runErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				run.panicStack = string(debug.Stack())
				runErr = fmt.Errorf("pipeline panic: %v", rec)
			}
		}()
		switch job.JobType {
		case domain.JobTypeTranscribe:
			runErr = w.runTranscribe(ctx, run)
		case domain.JobTypeIndex:
			runErr = w.runIndex(ctx, run)
		case domain.JobTypeSummarize:
			runErr = w.runSummarize(ctx, run)
		case domain.JobTypeKeyframes:
			runErr = w.runKeyframes(ctx, run)
		default:
			runErr = Coded("E_JOB_FAILED", "unknown job type %q", job.JobType)
		}
	}()
	w.finalize(ctx, run, runErr)
}

func (w *Worker) finalize(ctx context.Context, run *jobRun, runErr error) {
	job := run.job

	if runErr == nil {
		status, err := w.repos.Jobs.Status(ctx, job.ID)
		if err != nil {
			run.log.Error("status probe after pipeline failed", "error", err)
			return
		}
		if status == domain.JobStatusRunning {
			_ = w.repos.Jobs.Update(ctx, job.ID, map[string]any{
				"status":   domain.JobStatusCompleted,
				"progress": 1.0,
				"message":  "completed",
			})
			if job.JobType == domain.JobTypeTranscribe {
				_ = w.repos.Videos.SetStatus(ctx, job.VideoID, domain.VideoStatusComplete)
			}
			run.log.Info("job completed")
			return
		}
		// Externally cancelled or reset between the last checkpoint and
		// here; leave the job row alone.
		w.writeCancelledArtifacts(ctx, run)
		return
	}

	if errors.Is(runErr, ErrJobCancelled) {
		run.log.Info("job cancelled")
		w.writeCancelledArtifacts(ctx, run)
		return
	}

	// Cancellation supersedes failure.
	if status, err := w.repos.Jobs.Status(ctx, job.ID); err == nil && status == domain.JobStatusCancelled {
		run.log.Info("job cancelled during failure handling")
		w.writeCancelledArtifacts(ctx, run)
		return
	}

	code := classifyError(job.JobType, runErr)
	trace := fmt.Sprintf("%+v", runErr)
	if run.panicStack != "" {
		trace += "\n" + run.panicStack
	}
	result, _ := json.Marshal(map[string]string{"trace": truncate(trace, 4000)})

	run.log.Error("job failed", "error_code", code, "error", runErr)
	_ = w.repos.Jobs.Update(ctx, job.ID, map[string]any{
		"status":        domain.JobStatusFailed,
		"message":       "failed",
		"error_code":    code,
		"error_message": truncate(runErr.Error(), 2000),
		"result":        result,
	})

	failFields := map[string]any{
		"status":        domain.ArtifactStatusFailed,
		"message":       "failed",
		"error_code":    code,
		"error_message": truncate(runErr.Error(), 2000),
	}
	switch job.JobType {
	case domain.JobTypeTranscribe:
		_ = w.repos.Videos.SetStatus(ctx, job.VideoID, domain.VideoStatusError)
	case domain.JobTypeIndex:
		_ = w.repos.Indexes.Update(ctx, job.VideoID, failFields)
	case domain.JobTypeSummarize:
		_ = w.repos.Summaries.Update(ctx, job.VideoID, failFields)
	case domain.JobTypeKeyframes:
		_ = w.repos.KeyframeIndexes.Update(ctx, job.VideoID, failFields)
	}
}

func (w *Worker) writeCancelledArtifacts(ctx context.Context, run *jobRun) {
	fields := map[string]any{
		"status":  domain.ArtifactStatusCancelled,
		"message": "cancelled",
	}
	switch run.job.JobType {
	case domain.JobTypeTranscribe:
		_ = w.repos.Videos.SetStatus(ctx, run.job.VideoID, domain.VideoStatusPending)
	case domain.JobTypeIndex:
		_ = w.repos.Indexes.Update(ctx, run.job.VideoID, fields)
	case domain.JobTypeSummarize:
		_ = w.repos.Summaries.Update(ctx, run.job.VideoID, fields)
	case domain.JobTypeKeyframes:
		_ = w.repos.KeyframeIndexes.Update(ctx, run.job.VideoID, fields)
	}
}

// withLimiter runs fn while holding the limiter, translating an acquire
// timeout into the given coded error.
func (w *Worker) withLimiter(l *rt.Limiter, timeout time.Duration, code string, fn func() error) error {
	if !l.Acquire(timeout) {
		return Coded(code, "limiter acquire timed out after %s", timeout)
	}
	defer l.Release()
	return fn()
}

// jobRun is the per-execution context: the claimed job plus its epoch
// token.
type jobRun struct {
	w          *Worker
	job        *domain.Job
	epoch      time.Time
	log        *logger.Logger
	panicStack string
}

// ensureSameRun re-reads the job row and confirms this run still owns
// it. Any status flip or epoch change raises ErrJobCancelled.
func (r *jobRun) ensureSameRun(ctx context.Context) error {
	j, err := r.w.repos.Jobs.GetByID(ctx, r.job.ID)
	if err != nil {
		return err
	}
	if j == nil || j.Status != domain.JobStatusRunning || j.StartedAt == nil || !j.StartedAt.Equal(r.epoch) {
		return ErrJobCancelled
	}
	return nil
}

func (r *jobRun) progress(ctx context.Context, p float64, msg string) {
	_ = r.w.repos.Jobs.Update(ctx, r.job.ID, map[string]any{"progress": p, "message": msg})
}

func (r *jobRun) params() map[string]any {
	out := map[string]any{}
	if len(r.job.Params) > 0 {
		_ = json.Unmarshal(r.job.Params, &out)
	}
	return out
}

func paramFloat(p map[string]any, key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func paramInt(p map[string]any, key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func paramBool(p map[string]any, key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func paramString(p map[string]any, key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// chunkParamsFrom reads window overrides out of job params on top of the
// given defaults.
func chunkParamsFrom(p map[string]any, def chunking.Params) chunking.Params {
	return chunking.Params{
		TargetWindow: paramFloat(p, "target_window_seconds", def.TargetWindow),
		MaxWindow:    paramFloat(p, "max_window_seconds", def.MaxWindow),
		MinWindow:    paramFloat(p, "min_window_seconds", def.MinWindow),
		Overlap:      paramFloat(p, "overlap_seconds", def.Overlap),
		SilenceGap:   def.SilenceGap,
	}
}

// loadTranscriptOrFail loads the segment log, failing the given artifact
// writer with TRANSCRIPT_NOT_FOUND when it is missing or empty.
func (w *Worker) loadTranscript(videoID string) ([]transcript.Segment, string, error) {
	if !w.store.Exists(videoID) {
		return nil, "", Coded("TRANSCRIPT_NOT_FOUND", "transcript missing for video %s", videoID)
	}
	segs, err := w.store.Load(videoID, 0)
	if err != nil {
		return nil, "", err
	}
	if len(segs) == 0 {
		return nil, "", Coded("TRANSCRIPT_NOT_FOUND", "transcript empty for video %s", videoID)
	}
	hash, err := w.store.ContentHash(videoID)
	if err != nil {
		return nil, "", err
	}
	return segs, hash, nil
}
