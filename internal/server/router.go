package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openedge-labs/video-agent-backend/internal/http/handlers"
	"github.com/openedge-labs/video-agent-backend/internal/http/middleware"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type RouterConfig struct {
	CORSOrigins []string
	Log         *logger.Logger

	VideoHandler     *handlers.VideoHandler
	JobHandler       *handlers.JobHandler
	ArtifactHandler  *handlers.ArtifactHandler
	KeyframeHandler  *handlers.KeyframeHandler
	RetrievalHandler *handlers.RetrievalHandler
	StreamHandler    *handlers.StreamHandler
	PrefsHandler     *handlers.PrefsHandler
	SystemHandler    *handlers.SystemHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", cfg.SystemHandler.Health)

	// Videos and per-video artifacts
	router.POST("/videos/import", cfg.VideoHandler.Import)
	router.GET("/videos", cfg.VideoHandler.List)
	router.GET("/videos/:id", cfg.VideoHandler.Get)
	router.GET("/videos/:id/file", cfg.VideoHandler.File)
	router.GET("/videos/:id/transcript", cfg.VideoHandler.Transcript)
	router.GET("/videos/:id/subtitles/:fmt", cfg.VideoHandler.Subtitles)
	router.GET("/videos/:id/export/markdown", cfg.VideoHandler.ExportMarkdown)
	router.GET("/videos/:id/chunks", cfg.VideoHandler.Chunks)

	router.POST("/videos/:id/index", cfg.ArtifactHandler.StartIndex)
	router.POST("/videos/:id/summarize", cfg.ArtifactHandler.StartSummarize)
	router.POST("/videos/:id/keyframes", cfg.ArtifactHandler.StartKeyframes)
	router.GET("/videos/:id/index", cfg.ArtifactHandler.GetIndex)
	router.GET("/videos/:id/summary", cfg.ArtifactHandler.GetSummary)
	router.GET("/videos/:id/outline", cfg.ArtifactHandler.GetOutline)
	router.GET("/videos/:id/keyframes/index", cfg.ArtifactHandler.GetKeyframeIndex)

	router.GET("/videos/:id/keyframes", cfg.KeyframeHandler.List)
	router.GET("/videos/:id/keyframes/nearest", cfg.KeyframeHandler.Nearest)
	router.GET("/videos/:id/keyframes/aligned", cfg.KeyframeHandler.Aligned)
	router.GET("/videos/:id/keyframes/:kid/image", cfg.KeyframeHandler.Image)

	// Jobs
	router.POST("/jobs/transcribe", cfg.JobHandler.Transcribe)
	router.GET("/jobs", cfg.JobHandler.List)
	router.GET("/jobs/:id", cfg.JobHandler.Get)
	router.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)
	router.POST("/jobs/:id/retry", cfg.JobHandler.Retry)
	router.GET("/jobs/:id/events", cfg.StreamHandler.JobEvents)
	router.GET("/ws/jobs/:id", cfg.StreamHandler.JobSocket)

	// Retrieval
	router.GET("/search", cfg.RetrievalHandler.Search)
	router.POST("/chat", cfg.RetrievalHandler.Chat)

	// Preferences and runtime
	router.GET("/llm/preferences/default", cfg.PrefsHandler.GetLLMPreferences)
	router.PUT("/llm/preferences/default", cfg.PrefsHandler.SetLLMPreferences)
	router.GET("/llm/providers", cfg.PrefsHandler.Providers)
	router.GET("/llm/local/status", cfg.PrefsHandler.LocalStatus)
	router.GET("/models/manifest", cfg.PrefsHandler.Manifest)
	router.GET("/runtime/profile", cfg.PrefsHandler.GetRuntimeProfile)
	router.PUT("/runtime/profile", cfg.PrefsHandler.SetRuntimeProfile)
	router.GET("/runtime/concurrency", cfg.PrefsHandler.Concurrency)

	router.POST("/summaries/cloud", cfg.SystemHandler.CloudSummary)

	return router
}
