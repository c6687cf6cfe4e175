package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

const (
	// LegacyCollection is the flat collection name kept for query
	// fallback when a versioned collection does not exist yet.
	LegacyCollection = "video_chunks"

	maxErrorBodyBytes = 1024
)

// ErrUnavailable wraps every transport/server failure talking to the
// vector store; callers map it to E_VECTOR_STORE_UNAVAILABLE.
var ErrUnavailable = errors.New("vector store unavailable")

// Store is the vector-store surface the pipelines and the retrieval path
// depend on.
type Store interface {
	Upsert(ctx context.Context, collection string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error
	Query(ctx context.Context, collection string, embedding []float32, topK int, where map[string]any) (*QueryResult, error)
	DeleteWhere(ctx context.Context, collection string, where map[string]any) error
}

// QueryResult mirrors the store's nested-list response shape.
// CollectionMissing is a non-error signal distinct from unavailability.
type QueryResult struct {
	IDs               []string
	Documents         []string
	Metadatas         []map[string]any
	Distances         []float64
	CollectionMissing bool
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With("service", "ChromaStore"),
	}
}

var collectionPartRE = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeCollectionPart lower-cases, collapses unsupported characters
// to underscores, and strips leading/trailing underscores.
func SanitizeCollectionPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = collectionPartRE.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "default"
	}
	return s
}

// CollectionName derives the versioned per-(model, dim) collection name.
func CollectionName(embedModel string, embedDim int) string {
	return fmt.Sprintf("video_chunks__%s__d%d", SanitizeCollectionPart(embedModel), embedDim)
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// lookupCollection resolves a collection name to its id. Returns
// ("", nil) when the collection does not exist and create is false.
func (c *Client) lookupCollection(ctx context.Context, name string, create bool) (string, error) {
	const op = "collection"
	var info collectionInfo
	err := c.doJSON(ctx, op, http.MethodGet, "/api/v1/collections/"+name, nil, &info)
	if err == nil && info.ID != "" {
		return info.ID, nil
	}
	var httpErr *statusError
	if errors.As(err, &httpErr) && (httpErr.Status == http.StatusNotFound || isMissingCollectionBody(httpErr.Body)) {
		if !create {
			return "", nil
		}
		req := map[string]any{"name": name, "get_or_create": true}
		var created collectionInfo
		if err := c.doJSON(ctx, op, http.MethodPost, "/api/v1/collections", req, &created); err != nil {
			return "", err
		}
		return created.ID, nil
	}
	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: collection %s resolved without id", ErrUnavailable, name)
}

func isMissingCollectionBody(body string) bool {
	return strings.Contains(strings.ToLower(body), "does not exist")
}

func (c *Client) Upsert(ctx context.Context, collection string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := c.lookupCollection(ctx, collection, true)
	if err != nil {
		return err
	}
	req := map[string]any{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	return c.doJSON(ctx, "upsert", http.MethodPost, "/api/v1/collections/"+id+"/upsert", req, nil)
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

func (c *Client) Query(ctx context.Context, collection string, embedding []float32, topK int, where map[string]any) (*QueryResult, error) {
	id, err := c.lookupCollection(ctx, collection, false)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return &QueryResult{CollectionMissing: true}, nil
	}
	if topK <= 0 {
		topK = 10
	}
	req := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		req["where"] = where
	}
	var resp queryResponse
	if err := c.doJSON(ctx, "query", http.MethodPost, "/api/v1/collections/"+id+"/query", req, &resp); err != nil {
		return nil, err
	}
	out := &QueryResult{}
	if len(resp.IDs) > 0 {
		out.IDs = resp.IDs[0]
	}
	if len(resp.Documents) > 0 {
		out.Documents = resp.Documents[0]
	}
	if len(resp.Metadatas) > 0 {
		out.Metadatas = resp.Metadatas[0]
	}
	if len(resp.Distances) > 0 {
		out.Distances = resp.Distances[0]
	}
	return out, nil
}

// DeleteWhere removes vectors matching the filter. A missing collection
// is ignored.
func (c *Client) DeleteWhere(ctx context.Context, collection string, where map[string]any) error {
	id, err := c.lookupCollection(ctx, collection, false)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	req := map[string]any{"where": where}
	return c.doJSON(ctx, "delete", http.MethodPost, "/api/v1/collections/"+id+"/delete", req, nil)
}

type statusError struct {
	Op     string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chroma %s: http status=%d body=%q", e.Op, e.Status, e.Body)
}

func (e *statusError) Unwrap() error { return ErrUnavailable }

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("chroma %s: encode request: %w", op, err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("chroma %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyCallError(op, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("%w: chroma %s: read response: %v", ErrUnavailable, op, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Op: op, Status: resp.StatusCode, Body: truncateBody(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: chroma %s: decode response: %v", ErrUnavailable, op, err)
	}
	return nil
}

func classifyCallError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: chroma %s: timeout: %v", ErrUnavailable, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: chroma %s: timeout: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%w: chroma %s: transport: %v", ErrUnavailable, op, err)
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}

// Score converts a store distance into a similarity score.
func Score(distance float64) float64 {
	if distance >= 0 {
		return 1 / (1 + distance)
	}
	return 1
}
