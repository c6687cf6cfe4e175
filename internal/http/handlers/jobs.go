package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/jobs"
	"github.com/openedge-labs/video-agent-backend/internal/platform/chroma"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

type JobHandler struct {
	repos        *repos.Repos
	store        *transcript.Store
	vectors      chroma.Store
	keyframesDir func(videoID string) string
	log          *logger.Logger
}

func NewJobHandler(r *repos.Repos, store *transcript.Store, vectors chroma.Store, keyframesDir func(string) string, log *logger.Logger) *JobHandler {
	return &JobHandler{
		repos:        r,
		store:        store,
		vectors:      vectors,
		keyframesDir: keyframesDir,
		log:          log.With("handler", "JobHandler"),
	}
}

// POST /jobs/transcribe
func (h *JobHandler) Transcribe(c *gin.Context) {
	var body struct {
		VideoID        string   `json:"video_id"`
		SegmentSeconds *float64 `json:"segment_seconds"`
		OverlapSeconds *float64 `json:"overlap_seconds"`
		FromScratch    bool     `json:"from_scratch"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.VideoID == "" {
		response.RespondError(c, http.StatusBadRequest, "VIDEO_ID_REQUIRED", errors.New("video_id is required"))
		return
	}

	video, err := h.repos.Videos.GetByID(c.Request.Context(), body.VideoID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if video == nil {
		response.RespondError(c, http.StatusNotFound, "VIDEO_NOT_FOUND", fmt.Errorf("video %s not found", body.VideoID))
		return
	}

	// At most one active transcribe job per video.
	if active, err := h.repos.Jobs.ActiveForVideo(c.Request.Context(), video.ID, domain.JobTypeTranscribe); err == nil && active != nil {
		response.RespondOK(c, gin.H{"job": active})
		return
	}

	params := map[string]any{"from_scratch": body.FromScratch}
	if body.SegmentSeconds != nil {
		params["segment_seconds"] = *body.SegmentSeconds
	}
	if body.OverlapSeconds != nil {
		params["overlap_seconds"] = *body.OverlapSeconds
	}

	job, err := h.repos.Jobs.Create(c.Request.Context(), video.ID, domain.JobTypeTranscribe, params)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /jobs
func (h *JobHandler) List(c *gin.Context) {
	f := repos.JobFilter{
		Status:  c.Query("status"),
		VideoID: c.Query("video_id"),
		JobType: c.Query("job_type"),
		Limit:   clampInt(queryInt(c, "limit", 50), 1, 200),
		Offset:  queryInt(c, "offset", 0),
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := h.repos.Jobs.List(c.Request.Context(), f)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": list, "limit": f.Limit, "offset": f.Offset})
}

// POST /jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	cancelled, err := h.repos.Jobs.Cancel(c.Request.Context(), job.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if !cancelled {
		response.RespondError(c, http.StatusBadRequest, "JOB_NOT_CANCELLABLE", fmt.Errorf("job %s is %s", job.ID, job.Status))
		return
	}
	job, _ = h.repos.Jobs.GetByID(c.Request.Context(), job.ID)
	response.RespondOK(c, gin.H{"job": job})
}

// POST /jobs/:id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	if !job.IsTerminal() {
		response.RespondError(c, http.StatusBadRequest, "JOB_NOT_RETRIABLE", fmt.Errorf("job %s is %s", job.ID, job.Status))
		return
	}

	var body struct {
		FromScratch bool `json:"from_scratch"`
	}
	_ = c.ShouldBindJSON(&body)

	if body.FromScratch {
		// External cleanup happens before the reset; a failed reset after
		// cleanup is accepted as destructive-on-retry.
		h.cleanupForRetry(c.Request.Context(), job)

		params := map[string]any{}
		if len(job.Params) > 0 {
			_ = json.Unmarshal(job.Params, &params)
		}
		params["from_scratch"] = true
		raw, _ := json.Marshal(params)
		if err := h.repos.Jobs.Update(c.Request.Context(), job.ID, map[string]any{"params": raw}); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
			return
		}
	}

	reset, err := h.repos.Jobs.Reset(c.Request.Context(), job.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if !reset {
		response.RespondError(c, http.StatusBadRequest, "JOB_RESET_FAILED", fmt.Errorf("job %s could not be reset", job.ID))
		return
	}
	if job.JobType == domain.JobTypeTranscribe {
		_ = h.repos.Videos.SetStatus(c.Request.Context(), job.VideoID, domain.VideoStatusPending)
	}

	job, _ = h.repos.Jobs.GetByID(c.Request.Context(), job.ID)
	response.RespondOK(c, gin.H{"job": job})
}

func (h *JobHandler) cleanupForRetry(ctx context.Context, job *domain.Job) {
	switch job.JobType {
	case domain.JobTypeTranscribe:
		if err := h.store.Delete(job.VideoID); err != nil {
			h.log.Warn("transcript cleanup failed", "video_id", job.VideoID, "error", err)
		}
	case domain.JobTypeIndex:
		if err := h.repos.Chunks.DeleteForVideo(ctx, job.VideoID); err != nil {
			h.log.Warn("chunk cleanup failed", "video_id", job.VideoID, "error", err)
		}
		collections := []string{chroma.LegacyCollection}
		if row, err := h.repos.Indexes.Get(ctx, job.VideoID); err == nil && row != nil && row.EmbedModel != "" {
			collections = append(collections, chroma.CollectionName(row.EmbedModel, row.EmbedDim))
		}
		for _, col := range collections {
			if err := h.vectors.DeleteWhere(ctx, col, map[string]any{"video_id": job.VideoID}); err != nil {
				h.log.Warn("vector cleanup failed", "collection", col, "error", err)
			}
		}
	case domain.JobTypeSummarize:
		if err := h.repos.Summaries.Delete(ctx, job.VideoID); err != nil {
			h.log.Warn("summary cleanup failed", "video_id", job.VideoID, "error", err)
		}
	case domain.JobTypeKeyframes:
		if err := h.repos.Keyframes.DeleteForVideo(ctx, job.VideoID); err != nil {
			h.log.Warn("keyframe cleanup failed", "video_id", job.VideoID, "error", err)
		}
		if err := h.repos.KeyframeIndexes.Delete(ctx, job.VideoID); err != nil {
			h.log.Warn("keyframe index cleanup failed", "video_id", job.VideoID, "error", err)
		}
		jobs.RemoveKeyframeImages(h.keyframesDir(job.VideoID))
	}
}

func (h *JobHandler) lookup(c *gin.Context) (*domain.Job, bool) {
	job, err := h.repos.Jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return nil, false
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Errorf("job %s not found", c.Param("id")))
		return nil, false
	}
	return job, true
}
