package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

const streamPollInterval = 500 * time.Millisecond

// StreamHandler observes job mutations over SSE and WebSocket. Both
// channels poll the job row and forward it whenever updated_at moves.
type StreamHandler struct {
	repos    *repos.Repos
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewStreamHandler(r *repos.Repos, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		repos: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With("handler", "StreamHandler"),
	}
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
}

func writeSSE(c *gin.Context, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
}

func writeSSEWithID(c *gin.Context, id, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", id, event, data)
}

// GET /jobs/:id/events
//
// Emits an `event: job` frame whenever the row's updated_at changes and
// a keep-alive comment otherwise. A missing job ends the stream with a
// terminal error event.
func (h *StreamHandler) JobEvents(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	job, err := h.repos.Jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		response.RespondError(c, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Errorf("job %s not found", jobID))
		return
	}

	setSSEHeaders(c)
	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	var lastSeen time.Time
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	emit := func() bool {
		job, err := h.repos.Jobs.GetByID(ctx, jobID)
		if err != nil || job == nil {
			writeSSE(c, "error", gin.H{"error": "JOB_NOT_FOUND"})
			flush()
			return false
		}
		if job.UpdatedAt.After(lastSeen) {
			lastSeen = job.UpdatedAt
			writeSSEWithID(c, job.UpdatedAt.Format(time.RFC3339Nano), "job", job)
		} else {
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
		}
		flush()
		return true
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		}
	}
}

// GET /ws/jobs/:id
func (h *StreamHandler) JobSocket(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	job, err := h.repos.Jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		response.RespondError(c, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Errorf("job %s not found", jobID))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastSeen time.Time
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		job, err := h.repos.Jobs.GetByID(ctx, jobID)
		if err != nil || job == nil {
			_ = conn.WriteJSON(gin.H{"error": "JOB_NOT_FOUND"})
			return
		}
		if job.UpdatedAt.After(lastSeen) {
			lastSeen = job.UpdatedAt
			if err := conn.WriteJSON(gin.H{"event": "job", "job": job}); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
