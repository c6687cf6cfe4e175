package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/http/response"
	"github.com/openedge-labs/video-agent-backend/internal/platform/chroma"
	"github.com/openedge-labs/video-agent-backend/internal/platform/embed"
	"github.com/openedge-labs/video-agent-backend/internal/platform/llm"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	rt "github.com/openedge-labs/video-agent-backend/internal/runtime"
	"github.com/openedge-labs/video-agent-backend/internal/subtitle"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

const retrievalOnlyHeader = "未配置本地 LLM。以下为与问题最相关的片段："

// RetrievalHandler serves search and retrieval-augmented chat. Both
// share the index gating and the versioned-to-legacy collection
// fallback.
type RetrievalHandler struct {
	repos   *repos.Repos
	store   *transcript.Store
	vectors chroma.Store
	embed   embed.Func
	llms    *llm.Registry
	rt      *rt.Manager
	log     *logger.Logger
}

func NewRetrievalHandler(r *repos.Repos, store *transcript.Store, vectors chroma.Store, embedFn embed.Func, llms *llm.Registry, runtimeMgr *rt.Manager, log *logger.Logger) *RetrievalHandler {
	return &RetrievalHandler{
		repos:   r,
		store:   store,
		vectors: vectors,
		embed:   embedFn,
		llms:    llms,
		rt:      runtimeMgr,
		log:     log.With("handler", "RetrievalHandler"),
	}
}

type searchHit struct {
	ChunkID   string         `json:"chunk_id"`
	Text      string         `json:"text"`
	Score     float64        `json:"score"`
	StartTime float64        `json:"start_time"`
	EndTime   float64        `json:"end_time"`
	Metadata  map[string]any `json:"metadata"`
}

// GET /search
func (h *RetrievalHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		response.RespondError(c, http.StatusBadRequest, "QUERY_REQUIRED", errors.New("query is required"))
		return
	}
	videoID := c.Query("video_id")
	if videoID == "" {
		response.RespondError(c, http.StatusBadRequest, "VIDEO_ID_REQUIRED", errors.New("video_id is required"))
		return
	}
	topK := clampInt(queryInt(c, "top_k", 5), 1, 50)

	hits, handled := h.retrieve(c, videoID, query, topK)
	if handled {
		return
	}
	response.RespondOK(c, gin.H{"video_id": videoID, "query": query, "results": hits})
}

// retrieve runs the shared gating + query pipeline. When it handled the
// response itself (gating short-circuit or hard failure) it returns
// handled=true.
func (h *RetrievalHandler) retrieve(c *gin.Context, videoID, query string, topK int) ([]searchHit, bool) {
	ctx := c.Request.Context()

	video, err := h.repos.Videos.GetByID(ctx, videoID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return nil, true
	}
	if video == nil {
		response.RespondError(c, http.StatusNotFound, "VIDEO_NOT_FOUND", fmt.Errorf("video %s not found", videoID))
		return nil, true
	}

	if active, err := h.repos.Jobs.ActiveForVideo(ctx, videoID, domain.JobTypeIndex); err == nil && active != nil {
		response.Respond(c, http.StatusAccepted, gin.H{"code": "INDEXING_IN_PROGRESS", "job_id": active.ID})
		return nil, true
	}

	row, err := h.repos.Indexes.Get(ctx, videoID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return nil, true
	}
	current, _ := h.store.ContentHash(videoID)
	if row == nil || row.Status != domain.ArtifactStatusCompleted || row.TranscriptHash != current {
		if !h.store.Exists(videoID) {
			response.RespondError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", fmt.Errorf("no transcript for video %s", videoID))
			return nil, true
		}
		job, err := h.repos.Jobs.Create(ctx, videoID, domain.JobTypeIndex, map[string]any{"from_scratch": true})
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
			return nil, true
		}
		response.Respond(c, http.StatusAccepted, gin.H{"code": "INDEXING_STARTED", "job_id": job.ID})
		return nil, true
	}

	vectors, err := h.embed(ctx, []string{query}, row.EmbedModel, row.EmbedDim)
	if err != nil || len(vectors) == 0 {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", fmt.Errorf("query embedding failed: %v", err))
		return nil, true
	}

	where := map[string]any{"video_id": videoID}
	collection := chroma.CollectionName(row.EmbedModel, row.EmbedDim)
	result, err := h.vectors.Query(ctx, collection, vectors[0], topK, where)
	if err == nil && result.CollectionMissing {
		result, err = h.vectors.Query(ctx, chroma.LegacyCollection, vectors[0], topK, where)
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_VECTOR_STORE_UNAVAILABLE", err)
		return nil, true
	}
	if result.CollectionMissing {
		return nil, false
	}
	return zipHits(result), false
}

// zipHits pairs the parallel result arrays by the shortest length.
func zipHits(res *chroma.QueryResult) []searchHit {
	n := len(res.IDs)
	for _, l := range []int{len(res.Documents), len(res.Metadatas), len(res.Distances)} {
		if l < n {
			n = l
		}
	}
	hits := make([]searchHit, 0, n)
	for i := 0; i < n; i++ {
		meta := res.Metadatas[i]
		hits = append(hits, searchHit{
			ChunkID:   res.IDs[i],
			Text:      res.Documents[i],
			Score:     chroma.Score(res.Distances[i]),
			StartTime: metaFloat(meta, "start_time"),
			EndTime:   metaFloat(meta, "end_time"),
			Metadata:  meta,
		})
	}
	return hits
}

func metaFloat(meta map[string]any, key string) float64 {
	if v, ok := meta[key].(float64); ok {
		return v
	}
	return 0
}

type chatRequest struct {
	VideoID     string `json:"video_id"`
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
	Stream      bool   `json:"stream"`
	ConfirmSend bool   `json:"confirm_send"`
}

// POST /chat
func (h *RetrievalHandler) Chat(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "QUERY_REQUIRED", err)
		return
	}
	body.Query = strings.TrimSpace(body.Query)
	if body.Query == "" {
		response.RespondError(c, http.StatusBadRequest, "QUERY_REQUIRED", errors.New("query is required"))
		return
	}
	if body.VideoID == "" {
		response.RespondError(c, http.StatusBadRequest, "VIDEO_ID_REQUIRED", errors.New("video_id is required"))
		return
	}
	topK := clampInt(body.TopK, 1, 50)
	if body.TopK == 0 {
		topK = 5
	}

	hits, handled := h.retrieve(c, body.VideoID, body.Query, topK)
	if handled {
		return
	}

	prefs, err := h.repos.Prefs.GetLLM(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "E_INTERNAL", err)
		return
	}
	providerName, _ := prefs["provider"].(string)
	provider := h.llms.Get(providerName)

	if providerName == "" || providerName == "none" || provider == nil {
		answer := retrievalOnlyAnswer(hits)
		if body.Stream {
			h.streamAnswer(c, body, "retrieval_only", answer, hits)
			return
		}
		response.RespondOK(c, gin.H{
			"video_id":  body.VideoID,
			"query":     body.Query,
			"mode":      "retrieval_only",
			"answer":    answer,
			"citations": hits,
		})
		return
	}

	if provider.RequiresConfirmSend() && !body.ConfirmSend {
		response.RespondError(c, http.StatusBadRequest, "CONFIRM_SEND_REQUIRED", fmt.Errorf("provider %q requires confirm_send=true", providerName))
		return
	}

	msgs := chatPrompt(body.Query, hits)
	opts := llm.Options{
		Model:       prefString(prefs, "model"),
		Temperature: prefFloat(prefs, "temperature", 0.2),
		MaxTokens:   prefInt(prefs, "max_tokens", 512),
		Timeout:     h.rt.LLMRequestTimeout(),
	}

	if body.Stream {
		h.streamChat(c, body, provider, msgs, opts, hits)
		return
	}

	var answer string
	genErr := h.withLLMLimiter(func() error {
		var err error
		answer, err = provider.Generate(c.Request.Context(), msgs, opts)
		return err
	})
	if genErr != nil {
		detail := genErr.Error()
		if len(detail) > 2000 {
			detail = detail[:2000]
		}
		response.RespondError(c, http.StatusBadGateway, "LLM_FAILED:"+detail, genErr)
		return
	}
	response.RespondOK(c, gin.H{
		"video_id":  body.VideoID,
		"query":     body.Query,
		"mode":      "llm",
		"answer":    answer,
		"citations": hits,
	})
}

func (h *RetrievalHandler) withLLMLimiter(fn func() error) error {
	if !h.rt.LLM.Acquire(h.rt.LLMAcquireTimeout) {
		return errors.New("LLM_CONCURRENCY_TIMEOUT")
	}
	defer h.rt.LLM.Release()
	return fn()
}

// streamChat emits token events per delta and a final done event; a
// provider failure mid-stream becomes an error event.
func (h *RetrievalHandler) streamChat(c *gin.Context, body chatRequest, provider llm.Provider, msgs []llm.Message, opts llm.Options, hits []searchHit) {
	setSSEHeaders(c)
	flusher, _ := c.Writer.(http.Flusher)

	var answer string
	genErr := h.withLLMLimiter(func() error {
		var err error
		answer, err = provider.StreamGenerate(c.Request.Context(), msgs, opts, func(delta string) error {
			writeSSE(c, "token", gin.H{"delta": delta})
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		return err
	})
	if genErr != nil {
		writeSSE(c, "error", gin.H{"error": genErr.Error()})
		if flusher != nil {
			flusher.Flush()
		}
		return
	}
	writeSSE(c, "done", gin.H{
		"video_id":  body.VideoID,
		"query":     body.Query,
		"mode":      "llm",
		"answer":    answer,
		"citations": hits,
	})
	if flusher != nil {
		flusher.Flush()
	}
}

// streamAnswer replays a precomputed answer over SSE in token chunks.
func (h *RetrievalHandler) streamAnswer(c *gin.Context, body chatRequest, mode, answer string, hits []searchHit) {
	setSSEHeaders(c)
	flusher, _ := c.Writer.(http.Flusher)
	for _, piece := range llm.SplitRuns(answer, 64) {
		writeSSE(c, "token", gin.H{"delta": piece})
		if flusher != nil {
			flusher.Flush()
		}
	}
	writeSSE(c, "done", gin.H{
		"video_id":  body.VideoID,
		"query":     body.Query,
		"mode":      mode,
		"answer":    answer,
		"citations": hits,
	})
	if flusher != nil {
		flusher.Flush()
	}
}

func retrievalOnlyAnswer(hits []searchHit) string {
	var b strings.Builder
	b.WriteString(retrievalOnlyHeader)
	for i, hit := range hits {
		if i >= 3 {
			break
		}
		text := hit.Text
		if runes := []rune(text); len(runes) > 240 {
			text = string(runes[:240]) + "…"
		}
		b.WriteString(fmt.Sprintf("\n[%s - %s] %s",
			subtitle.FormatClock(hit.StartTime), subtitle.FormatClock(hit.EndTime), text))
	}
	return b.String()
}

func chatPrompt(query string, hits []searchHit) []llm.Message {
	var ctxb strings.Builder
	for i, hit := range hits {
		ctxb.WriteString(fmt.Sprintf("[%d] (%s - %s) %s\n",
			i+1, subtitle.FormatClock(hit.StartTime), subtitle.FormatClock(hit.EndTime), hit.Text))
	}
	return []llm.Message{
		{Role: "system", Content: "You answer questions about a video using only the provided transcript excerpts. Cite excerpts as [n] and answer in the language of the question."},
		{Role: "user", Content: fmt.Sprintf("Excerpts:\n%s\nQuestion: %s", ctxb.String(), query)},
	}
}

func prefString(prefs map[string]any, key string) string {
	s, _ := prefs[key].(string)
	return s
}

func prefFloat(prefs map[string]any, key string, def float64) float64 {
	if v, ok := prefs[key].(float64); ok {
		return v
	}
	return def
}

func prefInt(prefs map[string]any, key string, def int) int {
	if v, ok := prefs[key].(float64); ok {
		return int(v)
	}
	return def
}
