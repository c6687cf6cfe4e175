package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/llm"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	"github.com/openedge-labs/video-agent-backend/internal/platform/manifest"
	rt "github.com/openedge-labs/video-agent-backend/internal/runtime"
)

const localProbeTimeout = 2500 * time.Millisecond

type PrefsHandler struct {
	repos        *repos.Repos
	llms         *llm.Registry
	rt           *rt.Manager
	localBaseURL string
	manifestPath string
	log          *logger.Logger
}

func NewPrefsHandler(r *repos.Repos, llms *llm.Registry, runtimeMgr *rt.Manager, localBaseURL, manifestPath string, log *logger.Logger) *PrefsHandler {
	return &PrefsHandler{
		repos:        r,
		llms:         llms,
		rt:           runtimeMgr,
		localBaseURL: localBaseURL,
		manifestPath: manifestPath,
		log:          log.With("handler", "PrefsHandler"),
	}
}

// GET /llm/preferences/default
func (h *PrefsHandler) GetLLMPreferences(c *gin.Context) {
	prefs, err := h.repos.Prefs.GetLLM(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"preferences": prefs})
}

// PUT /llm/preferences/default
func (h *PrefsHandler) SetLLMPreferences(c *gin.Context) {
	prefs := map[string]any{}
	if err := c.ShouldBindJSON(&prefs); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_PREFERENCES", err)
		return
	}
	if err := h.repos.Prefs.SetLLM(c.Request.Context(), prefs); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"preferences": prefs})
}

// GET /llm/providers
func (h *PrefsHandler) Providers(c *gin.Context) {
	response.RespondOK(c, gin.H{"providers": h.llms.Names()})
}

// GET /llm/local/status
//
// Probes the local OpenAI-compatible server's /models with a short
// timeout; any failure is folded into a descriptive error string.
func (h *PrefsHandler) LocalStatus(c *gin.Context) {
	if h.localBaseURL == "" {
		response.RespondOK(c, gin.H{"ok": false, "error": "ERROR:LLM_LOCAL_BASE_URL not configured"})
		return
	}

	client := &http.Client{Timeout: localProbeTimeout}
	resp, err := client.Get(h.localBaseURL + "/models")
	if err != nil {
		var uerr *url.Error
		switch {
		case errors.As(err, &uerr) && uerr.Timeout():
			response.RespondOK(c, gin.H{"ok": false, "error": "TIMEOUT"})
		case errors.As(err, &uerr):
			response.RespondOK(c, gin.H{"ok": false, "error": "URL_ERROR:" + uerr.Err.Error()})
		default:
			response.RespondOK(c, gin.H{"ok": false, "error": "ERROR:" + err.Error()})
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		response.RespondOK(c, gin.H{"ok": false, "error": fmt.Sprintf("HTTP_%d", resp.StatusCode)})
		return
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	models := []string{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		for _, m := range payload.Data {
			models = append(models, m.ID)
		}
	}
	response.RespondOK(c, gin.H{"ok": true, "models": models})
}

// GET /models/manifest
func (h *PrefsHandler) Manifest(c *gin.Context) {
	response.RespondOK(c, gin.H{"manifest": manifest.Load(h.manifestPath)})
}

// GET /runtime/profile
func (h *PrefsHandler) GetRuntimeProfile(c *gin.Context) {
	stored, err := h.repos.Prefs.GetRuntime(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	response.RespondOK(c, gin.H{"preferences": stored, "effective": rt.EffectiveFrom(stored)})
}

// PUT /runtime/profile
func (h *PrefsHandler) SetRuntimeProfile(c *gin.Context) {
	stored := map[string]any{}
	if err := c.ShouldBindJSON(&stored); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_PREFERENCES", err)
		return
	}
	if err := h.repos.Prefs.SetRuntime(c.Request.Context(), stored); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	effective := h.rt.Apply(stored)
	response.RespondOK(c, gin.H{"preferences": stored, "effective": effective})
}

// GET /runtime/concurrency
func (h *PrefsHandler) Concurrency(c *gin.Context) {
	response.RespondOK(c, h.rt.Snapshot())
}
