package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type KeyframeHandler struct {
	repos    *repos.Repos
	dataRoot string
	log      *logger.Logger
}

func NewKeyframeHandler(r *repos.Repos, dataRoot string, log *logger.Logger) *KeyframeHandler {
	return &KeyframeHandler{repos: r, dataRoot: dataRoot, log: log.With("handler", "KeyframeHandler")}
}

func (h *KeyframeHandler) lookupVideo(c *gin.Context) (*domain.Video, bool) {
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

// GET /videos/:id/keyframes
func (h *KeyframeHandler) List(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	method := c.Query("method")
	if method != "" && method != domain.KeyframeMethodInterval && method != domain.KeyframeMethodScene {
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_KEYFRAMES_METHOD", fmt.Errorf("unsupported keyframes method %q", method))
		return
	}
	limit := clampInt(queryInt(c, "limit", 100), 1, 500)
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	frames, err := h.repos.Keyframes.ListByVideo(c.Request.Context(), video.ID, method, limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"video_id": video.ID, "keyframes": frames, "limit": limit, "offset": offset})
}

// GET /videos/:id/keyframes/nearest
func (h *KeyframeHandler) Nearest(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	method := c.Query("method")
	if method != "" && method != domain.KeyframeMethodInterval && method != domain.KeyframeMethodScene {
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_KEYFRAMES_METHOD", fmt.Errorf("unsupported keyframes method %q", method))
		return
	}
	ts := int64(queryInt(c, "timestamp_ms", 0))
	frame, err := h.repos.Keyframes.Nearest(c.Request.Context(), video.ID, ts, method)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if frame == nil {
		response.RespondError(c, http.StatusNotFound, "KEYFRAME_NOT_FOUND", fmt.Errorf("no keyframes for video %s", video.ID))
		return
	}
	response.RespondOK(c, gin.H{"keyframe": frame})
}

// GET /videos/:id/keyframes/:kid/image
func (h *KeyframeHandler) Image(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	frame, err := h.repos.Keyframes.GetByID(c.Request.Context(), c.Param("kid"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if frame == nil || frame.VideoID != video.ID {
		response.RespondError(c, http.StatusNotFound, "KEYFRAME_NOT_FOUND", fmt.Errorf("keyframe %s not found", c.Param("kid")))
		return
	}
	path := filepath.Join(h.dataRoot, frame.ImageRelpath)
	if _, err := os.Stat(path); err != nil {
		response.RespondError(c, http.StatusNotFound, "KEYFRAME_IMAGE_NOT_FOUND", fmt.Errorf("image missing for keyframe %s", frame.ID))
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

type outlineSection struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type alignedSection struct {
	Title     string            `json:"title"`
	StartTime float64           `json:"start_time"`
	EndTime   float64           `json:"end_time"`
	Keyframes []domain.Keyframe `json:"keyframes"`
}

// GET /videos/:id/keyframes/aligned
//
// For each outline section, pick up to per_section frames inside the
// section's time range. Scene frames rank by score; interval frames are
// evenly spaced. fallback=nearest (scene only) tops up from the frames
// closest to the section midpoint.
func (h *KeyframeHandler) Aligned(c *gin.Context) {
	video, ok := h.lookupVideo(c)
	if !ok {
		return
	}
	method := c.Query("method")
	if method == "" {
		method = domain.KeyframeMethodInterval
	}
	if method != domain.KeyframeMethodInterval && method != domain.KeyframeMethodScene {
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_KEYFRAMES_METHOD", fmt.Errorf("unsupported keyframes method %q", method))
		return
	}
	fallback := c.Query("fallback")
	switch fallback {
	case "", "none":
	case "nearest":
		if method != domain.KeyframeMethodScene {
			response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_FALLBACK", errors.New("fallback=nearest applies to scene method only"))
			return
		}
	default:
		response.RespondError(c, http.StatusBadRequest, "UNSUPPORTED_FALLBACK", fmt.Errorf("unsupported fallback %q", fallback))
		return
	}
	perSection := clampInt(queryInt(c, "per_section", 3), 1, 20)
	minGapMS := int64(queryFloat(c, "min_gap_seconds", 0) * 1000)

	summary, err := h.repos.Summaries.Get(c.Request.Context(), video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	if summary == nil || len(summary.Outline) == 0 {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", fmt.Errorf("no outline for video %s", video.ID))
		return
	}
	var sections []outlineSection
	if err := json.Unmarshal(summary.Outline, &sections); err != nil || len(sections) == 0 {
		response.RespondError(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", fmt.Errorf("outline for video %s is not sectioned", video.ID))
		return
	}

	frames, err := h.repos.Keyframes.ListByVideo(c.Request.Context(), video.ID, method, 10000, 0)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}

	out := make([]alignedSection, 0, len(sections))
	for _, sec := range sections {
		picked := alignSection(frames, sec, method, perSection, minGapMS, fallback == "nearest")
		out = append(out, alignedSection{
			Title:     sec.Title,
			StartTime: sec.StartTime,
			EndTime:   sec.EndTime,
			Keyframes: picked,
		})
	}
	response.RespondOK(c, gin.H{"video_id": video.ID, "method": method, "sections": out})
}

func alignSection(frames []domain.Keyframe, sec outlineSection, method string, perSection int, minGapMS int64, nearestFallback bool) []domain.Keyframe {
	startMS := int64(sec.StartTime * 1000)
	endMS := int64(sec.EndTime * 1000)

	var inRange []domain.Keyframe
	for _, f := range frames {
		if f.TimestampMS >= startMS && f.TimestampMS <= endMS {
			inRange = append(inRange, f)
		}
	}

	var picked []domain.Keyframe
	if method == domain.KeyframeMethodScene {
		ranked := make([]domain.Keyframe, len(inRange))
		copy(ranked, inRange)
		sort.SliceStable(ranked, func(a, b int) bool {
			return scoreOf(ranked[a]) > scoreOf(ranked[b])
		})
		for _, f := range ranked {
			if len(picked) >= perSection {
				break
			}
			if minGapMS > 0 && tooCloseMS(picked, f.TimestampMS, minGapMS) {
				continue
			}
			picked = append(picked, f)
		}
	} else {
		picked = evenlySpaced(inRange, perSection)
	}

	if nearestFallback && len(picked) < perSection {
		mid := (startMS + endMS) / 2
		rest := make([]domain.Keyframe, 0, len(frames))
		for _, f := range frames {
			if !containsFrame(picked, f.ID) {
				rest = append(rest, f)
			}
		}
		sort.SliceStable(rest, func(a, b int) bool {
			return absInt64(rest[a].TimestampMS-mid) < absInt64(rest[b].TimestampMS-mid)
		})
		for _, f := range rest {
			if len(picked) >= perSection {
				break
			}
			if minGapMS > 0 && tooCloseMS(picked, f.TimestampMS, minGapMS) {
				continue
			}
			picked = append(picked, f)
		}
	}

	sort.SliceStable(picked, func(a, b int) bool { return picked[a].TimestampMS < picked[b].TimestampMS })
	return picked
}

func evenlySpaced(frames []domain.Keyframe, n int) []domain.Keyframe {
	if len(frames) <= n {
		return frames
	}
	if n == 1 {
		return []domain.Keyframe{frames[len(frames)/2]}
	}
	out := make([]domain.Keyframe, 0, n)
	step := float64(len(frames)-1) / float64(n-1)
	last := -1
	for i := 0; i < n; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx >= len(frames) {
			idx = len(frames) - 1
		}
		if idx == last {
			continue
		}
		out = append(out, frames[idx])
		last = idx
	}
	return out
}

func scoreOf(f domain.Keyframe) float64 {
	if f.Score != nil {
		return *f.Score
	}
	return 0
}

func tooCloseMS(picked []domain.Keyframe, ts, minGapMS int64) bool {
	for _, p := range picked {
		if absInt64(p.TimestampMS-ts) < minGapMS {
			return true
		}
	}
	return false
}

func containsFrame(frames []domain.Keyframe, id string) bool {
	for _, f := range frames {
		if f.ID == id {
			return true
		}
	}
	return false
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
