package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest describes the models the frontend can offer. Any load error
// falls back to the default so a corrupt file never blocks startup.
type Manifest struct {
	Version        int      `json:"version"`
	LLMLocalModels []string `json:"llm_local_models"`
	ASRModels      []string `json:"asr_models"`
}

func Default() Manifest {
	return Manifest{
		Version:        1,
		LLMLocalModels: []string{},
		ASRModels:      []string{"small", "large-v3"},
	}
}

func Load(path string) Manifest {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil || m.Version == 0 {
		return Default()
	}
	if m.LLMLocalModels == nil {
		m.LLMLocalModels = []string{}
	}
	if m.ASRModels == nil {
		m.ASRModels = Default().ASRModels
	}
	return m
}

func Save(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
