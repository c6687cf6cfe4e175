package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/ffmpeg"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	"github.com/openedge-labs/video-agent-backend/internal/subtitle"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

type VideoHandler struct {
	repos *repos.Repos
	store *transcript.Store
	media *ffmpeg.Tools
	log   *logger.Logger
}

func NewVideoHandler(r *repos.Repos, store *transcript.Store, media *ffmpeg.Tools, log *logger.Logger) *VideoHandler {
	return &VideoHandler{repos: r, store: store, media: media, log: log.With("handler", "VideoHandler")}
}

// POST /videos/import
func (h *VideoHandler) Import(c *gin.Context) {
	var body struct {
		FilePath string `json:"file_path"`
		Title    string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.FilePath == "" {
		response.RespondError(c, http.StatusBadRequest, "FILE_NOT_FOUND", errors.New("file_path is required"))
		return
	}

	info, err := os.Stat(body.FilePath)
	if err != nil || info.IsDir() {
		response.RespondError(c, http.StatusBadRequest, "FILE_NOT_FOUND", fmt.Errorf("file not found: %s", body.FilePath))
		return
	}

	hash, err := hashFile(body.FilePath)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}

	duration, err := h.media.ProbeDuration(c.Request.Context(), body.FilePath)
	if err != nil {
		h.log.Warn("duration probe failed", "path", body.FilePath, "error", err)
	}

	title := body.Title
	if title == "" {
		title = filepath.Base(body.FilePath)
	}

	video, err := h.repos.Videos.CreateOrGet(c.Request.Context(), body.FilePath, hash, title, duration, info.Size())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"video": video})
}

// GET /videos/:id
func (h *VideoHandler) Get(c *gin.Context) {
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"video": video})
}

// GET /videos
func (h *VideoHandler) List(c *gin.Context) {
	limit := clampInt(queryInt(c, "limit", 50), 1, 200)
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	videos, err := h.repos.Videos.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"videos": videos, "limit": limit, "offset": offset})
}

// GET /videos/:id/file
func (h *VideoHandler) File(c *gin.Context) {
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	if _, err := os.Stat(video.FilePath); err != nil {
		response.RespondError(c, http.StatusNotFound, "VIDEO_FILE_NOT_FOUND", fmt.Errorf("video file missing: %s", video.FilePath))
		return
	}
	c.Header("Accept-Ranges", "bytes")
	c.File(video.FilePath)
}

// GET /videos/:id/transcript
func (h *VideoHandler) Transcript(c *gin.Context) {
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.store.Exists(video.ID) {
		response.RespondError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", fmt.Errorf("no transcript for video %s", video.ID))
		return
	}
	segs, err := h.store.Load(video.ID, queryInt(c, "limit", 0))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"video_id": video.ID, "segments": segs})
}

// GET /videos/:id/subtitles/:fmt
func (h *VideoHandler) Subtitles(c *gin.Context) {
	format := c.Param("fmt")
	if format != "srt" && format != "vtt" {
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_SUBTITLE_FORMAT", fmt.Errorf("unsupported subtitle format %q", format))
		return
	}
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	if !h.store.Exists(video.ID) {
		response.RespondError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", fmt.Errorf("no transcript for video %s", video.ID))
		return
	}
	segs, err := h.store.Load(video.ID, 0)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}

	var rendered, contentType string
	if format == "srt" {
		rendered, contentType = subtitle.RenderSRT(segs), "application/x-subrip; charset=utf-8"
	} else {
		rendered, contentType = subtitle.RenderVTT(segs), "text/vtt; charset=utf-8"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", video.ID, format))
	c.Data(http.StatusOK, contentType, []byte(rendered))
}

// GET /videos/:id/export/markdown
func (h *VideoHandler) ExportMarkdown(c *gin.Context) {
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	summary, err := h.repos.Summaries.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if summary == nil {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", fmt.Errorf("no summary for video %s", video.ID))
		return
	}
	if summary.Status != domain.ArtifactStatusCompleted {
		response.RespondError(c, http.StatusBadRequest, "SUMMARY_NOT_COMPLETED", fmt.Errorf("summary status is %s", summary.Status))
		return
	}
	if summary.SummaryMarkdown == "" {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_EMPTY", errors.New("summary markdown is empty"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.md", video.ID))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(summary.SummaryMarkdown))
}

// GET /videos/:id/chunks
func (h *VideoHandler) Chunks(c *gin.Context) {
	video, ok := h.lookup(c)
	if !ok {
		return
	}
	limit := clampInt(queryInt(c, "limit", 100), 1, 500)
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	chunks, err := h.repos.Chunks.ListByVideo(c.Request.Context(), video.ID, limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"video_id": video.ID, "chunks": chunks, "limit": limit, "offset": offset})
}

func (h *VideoHandler) lookup(c *gin.Context) (*domain.Video, bool) {
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

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(c *gin.Context, name string, def float64) float64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
