package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
)

// Func maps a batch of texts to fixed-dimension vectors under a named
// model.
type Func func(ctx context.Context, texts []string, model string, dim int) ([][]float32, error)

// Default routes fastembed:* model names to a local embedding HTTP
// service and everything else to the deterministic hash embedder.
func Default() Func {
	return func(ctx context.Context, texts []string, model string, dim int) ([][]float32, error) {
		if strings.HasPrefix(model, "fastembed") {
			return fastembedTexts(ctx, texts, model, dim)
		}
		return HashTexts(texts, dim)
	}
}

// HashTexts folds each text's sha256 digest into a vector. Deterministic
// and dependency-free, so retrieval works out of the box.
func HashTexts(texts []string, dim int) ([][]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive, got %d", dim)
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		digest := sha256.Sum256([]byte(text))
		vec := make([]float32, dim)
		for i := 0; i < dim; i++ {
			vec[i] = (float32(digest[i%len(digest)]) - 128) / 128
		}
		out = append(out, vec)
	}
	return out, nil
}

type fastembedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
	Dim   int      `json:"dim"`
}

type fastembedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func fastembedTexts(ctx context.Context, texts []string, model string, dim int) ([][]float32, error) {
	base := envutil.Str("FASTEMBED_URL", "")
	if base == "" {
		return nil, fmt.Errorf("fastembed model %q requested but FASTEMBED_URL is not set", model)
	}
	payload, err := json.Marshal(fastembedRequest{Model: model, Texts: texts, Dim: dim})
	if err != nil {
		return nil, fmt.Errorf("encode fastembed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build fastembed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fastembed request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fastembed http status=%d", resp.StatusCode)
	}
	var decoded fastembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode fastembed response: %w", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("fastembed returned %d embeddings for %d texts", len(decoded.Embeddings), len(texts))
	}
	return decoded.Embeddings, nil
}
