package cloudsum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/chunking"
	"github.com/openedge-labs/video-agent-backend/internal/platform/envutil"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Sentinel failures the HTTP layer maps to 400 responses.
var (
	ErrDisabled      = errors.New("CLOUD_SUMMARY_DISABLED")
	ErrMissingAPIKey = errors.New("MISSING_DASHSCOPE_API_KEY")
	ErrTextTooShort  = errors.New("TEXT_TOO_SHORT")
)

const maxInputChars = 15000

// Service performs single-shot remote summarization against a
// DashScope-compatible text-generation endpoint.
type Service struct {
	baseURL string
	model   string
	http    *http.Client
	log     *logger.Logger
}

func NewService(log *logger.Logger) *Service {
	return &Service{
		baseURL: strings.TrimRight(envutil.Str("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"), "/"),
		model:   envutil.Str("CLOUD_LLM_MODEL", "qwen-plus"),
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log.With("service", "CloudSummary"),
	}
}

type generationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []map[string]string `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"`
	} `json:"parameters"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Message string `json:"message"`
}

// Summarize sends the (truncated) text for a one-shot summary. The
// prompt language follows a CJK sniff of the text head.
func (s *Service) Summarize(ctx context.Context, text, apiKey string) (string, error) {
	if !envutil.Bool("ENABLE_CLOUD_SUMMARY", false) {
		return "", ErrDisabled
	}
	if apiKey == "" {
		apiKey = envutil.Str("DASHSCOPE_API_KEY", "")
	}
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 10 {
		return "", ErrTextTooShort
	}
	if runes := []rune(text); len(runes) > maxInputChars {
		text = string(runes[:maxInputChars])
	}

	system := "You are a concise assistant. Summarize the given video transcript into well-structured Markdown."
	user := "Summarize the following transcript:\n\n" + text
	if chunking.HasCJK(text, 400) {
		system = "你是一个简洁的助手。请将给定的视频文字稿整理为结构清晰的 Markdown 摘要。"
		user = "请总结以下文字稿：\n\n" + text
	}

	var reqBody generationRequest
	reqBody.Model = s.model
	reqBody.Input.Messages = []map[string]string{
		{"role": "system", "content": system},
		{"role": "user", "content": user},
	}
	reqBody.Parameters.ResultFormat = "message"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode cloud summary request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/services/aigc/text-generation/generation", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build cloud summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud summary request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(raw)
		if len(detail) > 2000 {
			detail = detail[:2000]
		}
		return "", fmt.Errorf("cloud summary http status=%d body=%s", resp.StatusCode, detail)
	}
	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode cloud summary response: %w", err)
	}
	if len(decoded.Output.Choices) == 0 {
		return "", fmt.Errorf("cloud summary returned no choices: %s", decoded.Message)
	}
	return decoded.Output.Choices[0].Message.Content, nil
}
