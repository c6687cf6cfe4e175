package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// OpenAIProvider talks to any OpenAI-compatible /chat/completions
// endpoint, optionally streaming token deltas over SSE.
type OpenAIProvider struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	confirmSend  bool
	log          *logger.Logger
}

func NewOpenAIProvider(name, baseURL, apiKey, defaultModel string, confirmSend bool, log *logger.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		confirmSend:  confirmSend,
		log:          log.With("service", "LLMProvider", "provider", name),
	}
}

func (p *OpenAIProvider) Name() string              { return p.name }
func (p *OpenAIProvider) RequiresConfirmSend() bool { return p.confirmSend }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, msgs []Message, opts Options) (string, error) {
	resp, err := p.call(ctx, msgs, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("LLM_REQUEST_FAILED:decode:%v", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("LLM_REQUEST_FAILED:empty:no choices in response")
	}
	return decoded.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) StreamGenerate(ctx context.Context, msgs []Message, opts Options, onDelta func(string) error) (string, error) {
	resp, err := p.call(ctx, msgs, opts, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var answer strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		if strings.TrimSpace(data) == "[DONE]" {
			return nil
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			return nil
		}
		answer.WriteString(delta)
		return onDelta(delta)
	})
	if err != nil {
		return answer.String(), classifyCallError(err)
	}
	return answer.String(), nil
}

func (p *OpenAIProvider) call(ctx context.Context, msgs []Message, opts Options, stream bool) (*http.Response, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM_REQUEST_FAILED:encode:%v", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("LLM_REQUEST_FAILED:request:%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, classifyCallError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("LLM_HTTP_%d:%s", resp.StatusCode, string(body))
	}
	// Tie the timeout cancel to body consumption.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}

func classifyCallError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("LLM_TIMEOUT")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.New("LLM_TIMEOUT")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("LLM_REQUEST_FAILED:transport:%v", urlErr.Err)
	}
	return fmt.Errorf("LLM_REQUEST_FAILED:transport:%v", err)
}
