package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/cloudsum"
	"github.com/openedge-labs/video-agent-backend/internal/data/db"
	"github.com/openedge-labs/video-agent-backend/internal/data/repos"
	"github.com/openedge-labs/video-agent-backend/internal/http/handlers"
	"github.com/openedge-labs/video-agent-backend/internal/jobs"
	"github.com/openedge-labs/video-agent-backend/internal/platform/asr"
	"github.com/openedge-labs/video-agent-backend/internal/platform/chroma"
	"github.com/openedge-labs/video-agent-backend/internal/platform/embed"
	"github.com/openedge-labs/video-agent-backend/internal/platform/ffmpeg"
	"github.com/openedge-labs/video-agent-backend/internal/platform/llm"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
	rt "github.com/openedge-labs/video-agent-backend/internal/runtime"
	"github.com/openedge-labs/video-agent-backend/internal/server"
	"github.com/openedge-labs/video-agent-backend/internal/transcript"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Repos   *repos.Repos
	Router  *gin.Engine
	Worker  *jobs.Worker
	Runtime *rt.Manager
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := cfg.EnsureDirs(); err != nil {
		log.Sync()
		return nil, err
	}

	gdb, err := db.Open(cfg.DatabasePath(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Sync()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	reposet := repos.New(gdb, log)
	if err := reposet.RecoverIncompleteState(context.Background()); err != nil {
		log.Warn("startup recovery sweep failed", "error", err)
	}

	runtimeMgr := rt.NewManager(log)
	if stored, err := reposet.Prefs.GetRuntime(context.Background()); err == nil {
		runtimeMgr.Apply(stored)
	}

	store := transcript.NewStore(cfg.TranscriptsDir(), log)
	vectors := chroma.NewClient(cfg.ChromaURL, log)
	embedFn := embed.Default()
	media := ffmpeg.NewTools(log)
	asrHolder := asr.NewHolder(func(cfg asr.Config) asr.Engine {
		return asr.NewCLIEngine(cfg, log)
	})

	providers := []llm.Provider{llm.NewFakeProvider()}
	if cfg.LLMLocalBaseURL != "" {
		providers = append(providers, llm.NewOpenAIProvider("openai_local", cfg.LLMLocalBaseURL, "", cfg.LLMLocalModel, false, log))
	}
	if cfg.EnableCloudLLM && cfg.LLMCloudBaseURL != "" {
		providers = append(providers, llm.NewOpenAIProvider("openai_cloud", cfg.LLMCloudBaseURL, cfg.LLMCloudAPIKey, cfg.LLMCloudModel, true, log))
	}
	registry := llm.NewRegistry(providers...)

	worker := jobs.NewWorker(reposet, store, vectors, embedFn, registry, media, asrHolder, runtimeMgr, jobs.Config{
		KeyframesDir:      cfg.KeyframesDir,
		ASRLanguage:       cfg.ASRLanguage,
		SegmentSeconds:    cfg.SegmentSeconds,
		OverlapSeconds:    cfg.OverlapSeconds,
		DefaultEmbedModel: cfg.EmbedModel,
		DefaultEmbedDim:   cfg.EmbedDim,
		IndexWindows:      cfg.IndexWindows,
	}, log)

	cloud := cloudsum.NewService(log)

	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.RouterConfig{
		CORSOrigins:      cfg.CORSOrigins,
		Log:              log,
		VideoHandler:     handlers.NewVideoHandler(reposet, store, media, log),
		JobHandler:       handlers.NewJobHandler(reposet, store, vectors, cfg.KeyframesDir, log),
		ArtifactHandler:  handlers.NewArtifactHandler(reposet, store, log),
		KeyframeHandler:  handlers.NewKeyframeHandler(reposet, cfg.DataRoot, log),
		RetrievalHandler: handlers.NewRetrievalHandler(reposet, store, vectors, embedFn, registry, runtimeMgr, log),
		StreamHandler:    handlers.NewStreamHandler(reposet, log),
		PrefsHandler:     handlers.NewPrefsHandler(reposet, registry, runtimeMgr, cfg.LLMLocalBaseURL, cfg.ManifestPath(), log),
		SystemHandler:    handlers.NewSystemHandler(cfg.DataRoot, cfg.CloudSummaryDefault, cloud, log),
	})

	return &App{
		Log:     log,
		Cfg:     cfg,
		DB:      gdb,
		Repos:   reposet,
		Router:  router,
		Worker:  worker,
		Runtime: runtimeMgr,
	}, nil
}

// Run serves HTTP and drives the job worker until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.Log.Sync()

	srv := &http.Server{
		Addr:    a.Cfg.Addr(),
		Handler: a.Router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.Cfg.DisableWorker {
		a.Log.Info("job worker disabled")
	} else {
		g.Go(func() error {
			if err := a.Worker.Run(gctx); err != nil && err != context.Canceled {
				return fmt.Errorf("job worker: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
