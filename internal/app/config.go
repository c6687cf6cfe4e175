package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openedge-labs/video-agent-backend/internal/chunking"
	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
)

// Config is the process configuration, resolved once from the
// environment at startup. All on-disk layout hangs off DataRoot.
type Config struct {
	Host          string
	Port          int
	Mode          string
	DataRoot      string
	CORSOrigins   []string
	DisableWorker bool

	ChromaURL string

	ASRLanguage    string
	SegmentSeconds float64
	OverlapSeconds float64

	EmbedModel   string
	EmbedDim     int
	IndexWindows chunking.Params

	LLMLocalBaseURL string
	LLMLocalModel   string
	EnableCloudLLM  bool
	LLMCloudBaseURL string
	LLMCloudAPIKey  string
	LLMCloudModel   string

	CloudSummaryDefault bool
}

func LoadConfig() Config {
	dataRoot := envutil.Str("EDGE_VIDEO_AGENT_DATA_DIR", "./data_root")

	windows := chunking.DefaultIndexParams()
	windows.TargetWindow = envutil.Float("INDEX_TARGET_WINDOW_SECONDS", windows.TargetWindow)
	windows.MaxWindow = envutil.Float("INDEX_MAX_WINDOW_SECONDS", windows.MaxWindow)
	windows.MinWindow = envutil.Float("INDEX_MIN_WINDOW_SECONDS", windows.MinWindow)
	windows.Overlap = envutil.Float("INDEX_OVERLAP_WINDOW_SECONDS", windows.Overlap)

	return Config{
		Host:          envutil.Str("EDGE_VIDEO_AGENT_HOST", "127.0.0.1"),
		Port:          envutil.Int("BACKEND_PORT", 8799),
		Mode:          envutil.Str("APP_MODE", "development"),
		DataRoot:      dataRoot,
		CORSOrigins:   splitOrigins(envutil.Str("EDGE_VIDEO_AGENT_CORS_ORIGINS", "")),
		DisableWorker: envutil.Bool("EDGE_VIDEO_AGENT_DISABLE_WORKER", false),

		ChromaURL: envutil.Str("CHROMA_URL", "http://127.0.0.1:8000"),

		ASRLanguage:    envutil.Str("ASR_LANGUAGE", "zh"),
		SegmentSeconds: envutil.Float("ASR_SEGMENT_SECONDS", 60),
		OverlapSeconds: envutil.Float("ASR_OVERLAP_SECONDS", 3),

		EmbedModel:   envutil.Str("EMBEDDING_MODEL", "hash"),
		EmbedDim:     envutil.Int("EMBEDDING_DIM", 384),
		IndexWindows: windows,

		LLMLocalBaseURL: envutil.Str("LLM_LOCAL_BASE_URL", ""),
		LLMLocalModel:   envutil.Str("LLM_LOCAL_MODEL", ""),
		EnableCloudLLM:  envutil.Bool("ENABLE_CLOUD_LLM", false),
		LLMCloudBaseURL: envutil.Str("LLM_CLOUD_BASE_URL", ""),
		LLMCloudAPIKey:  envutil.Str("LLM_CLOUD_API_KEY", ""),
		LLMCloudModel:   envutil.Str("LLM_CLOUD_MODEL", ""),

		CloudSummaryDefault: envutil.Bool("ENABLE_CLOUD_SUMMARY", false),
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) DatabasePath() string { return filepath.Join(c.DataRoot, "data", "database.db") }
func (c Config) ChromaDir() string    { return filepath.Join(c.DataRoot, "data", "chromadb") }
func (c Config) TranscriptsDir() string {
	return filepath.Join(c.DataRoot, "storage", "transcripts")
}
func (c Config) AudioDir() string { return filepath.Join(c.DataRoot, "storage", "audio") }
func (c Config) KeyframesDir(videoID string) string {
	return filepath.Join(c.DataRoot, "storage", "keyframes", videoID)
}
func (c Config) LogsDir() string { return filepath.Join(c.DataRoot, "logs") }
func (c Config) ManifestPath() string {
	return filepath.Join(c.DataRoot, "models", "manifest.json")
}

// EnsureDirs creates the on-disk layout under DataRoot.
func (c Config) EnsureDirs() error {
	dirs := []string{
		filepath.Join(c.DataRoot, "data"),
		c.ChromaDir(),
		c.TranscriptsDir(),
		c.AudioDir(),
		filepath.Join(c.DataRoot, "storage", "keyframes"),
		c.LogsDir(),
		filepath.Join(c.DataRoot, "models"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	return nil
}
