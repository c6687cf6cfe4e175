package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/jobs"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

// ArtifactHandler owns the idempotency gating shared by the three
// artifact-producing operations: an active job wins, then a fresh
// completed row, then stale rows get re-enqueued with from_scratch.
type ArtifactHandler struct {
	repos *repos.Repos
	store *transcript.Store
	log   *logger.Logger
}

func NewArtifactHandler(r *repos.Repos, store *transcript.Store, log *logger.Logger) *ArtifactHandler {
	return &ArtifactHandler{repos: r, store: store, log: log.With("handler", "ArtifactHandler")}
}

func (h *ArtifactHandler) lookupVideo(c *gin.Context) (*domain.Video, bool) {
	video, err := h.repos.Videos.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return nil, false
	}
	if video == nil {
		response.RespondError(c, http.StatusNotFound, "VIDEO_NOT_FOUND", fmt.Errorf("video %s not found", c.Param("id")))
		return nil, false
	}
	return video, true
}

func bindParams(c *gin.Context) map[string]any {
	params := map[string]any{}
	_ = c.ShouldBindJSON(&params)
	return params
}

// POST /videos/:id/index
func (h *ArtifactHandler) StartIndex(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	params := bindParams(c)
	ctx := c.Request.Context()

	if active, err := h.repos.Jobs.ActiveForVideo(ctx, video.ID, domain.JobTypeIndex); err == nil && active != nil {
		response.Respond(c, http.StatusAccepted, gin.H{"code": "INDEXING_IN_PROGRESS", "job_id": active.ID})
		return
	}
	if !h.store.Exists(video.ID) {
		response.RespondError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", fmt.Errorf("no transcript for video %s", video.ID))
		return
	}

	row, err := h.repos.Indexes.Get(ctx, video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	fromScratch, _ := params["from_scratch"].(bool)
	if row != nil && row.Status == domain.ArtifactStatusCompleted {
		current, _ := h.store.ContentHash(video.ID)
		if row.TranscriptHash == current && !fromScratch {
			response.RespondOK(c, gin.H{"code": "INDEX_ALREADY_COMPLETED", "index": row})
			return
		}
		if row.TranscriptHash != current {
			params["from_scratch"] = true
		}
	}

	job, err := h.repos.Jobs.Create(ctx, video.ID, domain.JobTypeIndex, params)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.Respond(c, http.StatusAccepted, gin.H{"code": "INDEXING_STARTED", "job_id": job.ID})
}

// POST /videos/:id/summarize
func (h *ArtifactHandler) StartSummarize(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	params := bindParams(c)
	ctx := c.Request.Context()

	if active, err := h.repos.Jobs.ActiveForVideo(ctx, video.ID, domain.JobTypeSummarize); err == nil && active != nil {
		response.Respond(c, http.StatusAccepted, gin.H{"code": "SUMMARIZING_IN_PROGRESS", "job_id": active.ID})
		return
	}
	if !h.store.Exists(video.ID) {
		response.RespondError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", fmt.Errorf("no transcript for video %s", video.ID))
		return
	}

	row, err := h.repos.Summaries.Get(ctx, video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	fromScratch, _ := params["from_scratch"].(bool)
	if row != nil && row.Status == domain.ArtifactStatusCompleted {
		current, _ := h.store.ContentHash(video.ID)
		if row.TranscriptHash == current && !fromScratch {
			response.RespondOK(c, gin.H{"code": "SUMMARY_ALREADY_COMPLETED", "summary": row})
			return
		}
		if row.TranscriptHash != current {
			params["from_scratch"] = true
		}
	}

	job, err := h.repos.Jobs.Create(ctx, video.ID, domain.JobTypeSummarize, params)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.Respond(c, http.StatusAccepted, gin.H{"code": "SUMMARIZE_STARTED", "job_id": job.ID})
}

// POST /videos/:id/keyframes
func (h *ArtifactHandler) StartKeyframes(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	params := bindParams(c)
	ctx := c.Request.Context()

	if mode, ok := params["mode"].(string); ok && mode != "" &&
		mode != domain.KeyframeMethodInterval && mode != domain.KeyframeMethodScene {
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_KEYFRAMES_METHOD", fmt.Errorf("unsupported keyframes mode %q", mode))
		return
	}

	if active, err := h.repos.Jobs.ActiveForVideo(ctx, video.ID, domain.JobTypeKeyframes); err == nil && active != nil {
		response.Respond(c, http.StatusAccepted, gin.H{"code": "KEYFRAMES_IN_PROGRESS", "job_id": active.ID})
		return
	}

	row, err := h.repos.KeyframeIndexes.Get(ctx, video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	fromScratch, _ := params["from_scratch"].(bool)
	if row != nil && row.Status == domain.ArtifactStatusCompleted {
		fresh := keyframeParamsMatch(row.Params, params)
		if fresh && !fromScratch {
			response.RespondOK(c, gin.H{"code": "KEYFRAMES_ALREADY_COMPLETED", "keyframe_index": row})
			return
		}
		if !fresh {
			params["from_scratch"] = true
		}
	}

	job, err := h.repos.Jobs.Create(ctx, video.ID, domain.JobTypeKeyframes, params)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.Respond(c, http.StatusAccepted, gin.H{"code": "KEYFRAMES_STARTED", "job_id": job.ID})
}

// keyframeParamsMatch normalizes both sides to the mode-relevant
// projection and compares with deep equality.
func keyframeParamsMatch(stored []byte, requested map[string]any) bool {
	storedMap := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &storedMap); err != nil {
			return false
		}
	}
	_, storedNorm := jobs.NormalizeKeyframeParams(storedMap)
	_, requestedNorm := jobs.NormalizeKeyframeParams(requested)
	return reflect.DeepEqual(storedNorm, requestedNorm)
}

// GET /videos/:id/index
func (h *ArtifactHandler) GetIndex(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	row, err := h.repos.Indexes.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "INDEX_NOT_FOUND", fmt.Errorf("no index for video %s", video.ID))
		return
	}
	current, _ := h.store.ContentHash(video.ID)
	response.RespondOK(c, gin.H{
		"index":                   row,
		"current_transcript_hash": current,
		"is_stale":                row.Status == domain.ArtifactStatusCompleted && row.TranscriptHash != current,
	})
}

// GET /videos/:id/summary
func (h *ArtifactHandler) GetSummary(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	row, err := h.repos.Summaries.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", fmt.Errorf("no summary for video %s", video.ID))
		return
	}
	current, _ := h.store.ContentHash(video.ID)
	response.RespondOK(c, gin.H{
		"summary":                 row,
		"current_transcript_hash": current,
		"is_stale":                row.Status == domain.ArtifactStatusCompleted && row.TranscriptHash != current,
	})
}

// GET /videos/:id/outline
func (h *ArtifactHandler) GetOutline(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	row, err := h.repos.Summaries.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", fmt.Errorf("no summary for video %s", video.ID))
		return
	}
	outline := json.RawMessage(row.Outline)
	if len(outline) == 0 {
		outline = json.RawMessage("null")
	}
	response.RespondOK(c, gin.H{"video_id": video.ID, "status": row.Status, "outline": outline})
}

// GET /videos/:id/keyframes/index
func (h *ArtifactHandler) GetKeyframeIndex(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	row, err := h.repos.KeyframeIndexes.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "KEYFRAME_INDEX_NOT_FOUND", fmt.Errorf("no keyframe index for video %s", video.ID))
		return
	}
	response.RespondOK(c, gin.H{"keyframe_index": row})
}
