package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/cloudsum"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type SystemHandler struct {
	dataRoot            string
	cloudSummaryDefault bool
	cloud               *cloudsum.Service
	log                 *logger.Logger
}

func NewSystemHandler(dataRoot string, cloudSummaryDefault bool, cloud *cloudsum.Service, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		dataRoot:            dataRoot,
		cloudSummaryDefault: cloudSummaryDefault,
		cloud:               cloud,
		log:                 log.With("handler", "SystemHandler"),
	}
}

// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"status":                "ok",
		"data_dir":              h.dataRoot,
		"cloud_summary_default": h.cloudSummaryDefault,
	})
}

// POST /summaries/cloud
func (h *SystemHandler) CloudSummary(c *gin.Context) {
	var body struct {
		Text        string `json:"text"`
		APIKey      string `json:"api_key"`
		ConfirmSend bool   `json:"confirm_send"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "TEXT_TOO_SHORT", err)
		return
	}
	if !body.ConfirmSend {
		response.RespondError(c, http.StatusBadRequest, "CONFIRM_SEND_REQUIRED", errors.New("confirm_send=true is required to send text to the cloud"))
		return
	}

	summary, err := h.cloud.Summarize(c.Request.Context(), body.Text, body.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, cloudsum.ErrDisabled):
			response.RespondError(c, http.StatusBadRequest, "CLOUD_SUMMARY_DISABLED", err)
		case errors.Is(err, cloudsum.ErrMissingAPIKey):
			response.RespondError(c, http.StatusBadRequest, "MISSING_DASHSCOPE_API_KEY", err)
		case errors.Is(err, cloudsum.ErrTextTooShort):
			response.RespondError(c, http.StatusBadRequest, "TEXT_TOO_SHORT", err)
		default:
			response.RespondError(c, http.StatusBadGateway, "CLOUD_SUMMARY_FAILED", err)
		}
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}
