package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashTextsDeterministic(t *testing.T) {
	a, err := HashTexts([]string{"hello"}, 384)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashTexts([]string{"hello"}, 384)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(a) != 1 || len(a[0]) != 384 {
		t.Fatalf("shape: %d vectors, dim %d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestHashTextsDistinctInputs(t *testing.T) {
	vecs, err := HashTexts([]string{"alpha", "beta"}, 8)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct texts must embed differently")
	}
}

func TestHashTextsBounds(t *testing.T) {
	vecs, err := HashTexts([]string{"x"}, 512)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	for _, v := range vecs[0] {
		if v < -1 || v > 1 {
			t.Fatalf("component %v out of [-1,1]", v)
		}
	}
}

func TestHashTextsInvalidDim(t *testing.T) {
	if _, err := HashTexts([]string{"x"}, 0); err == nil {
		t.Fatal("dim 0 must fail")
	}
	if _, err := HashTexts([]string{"x"}, -1); err == nil {
		t.Fatal("negative dim must fail")
	}
}

func TestHashTextsEmptyBatch(t *testing.T) {
	vecs, err := HashTexts(nil, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("expected empty result, got %d", len(vecs))
	}
}

func TestDefaultRoutesToHash(t *testing.T) {
	fn := Default()
	vecs, err := fn(context.Background(), []string{"text"}, "hash", 16)
	if err != nil {
		t.Fatalf("default embed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 16 {
		t.Fatalf("shape: %v", vecs)
	}
}

func TestDefaultRoutesToFastembed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req fastembedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "fastembed:bge-small" || len(req.Texts) != 2 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(fastembedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()
	t.Setenv("FASTEMBED_URL", srv.URL)

	fn := Default()
	vecs, err := fn(context.Background(), []string{"a", "b"}, "fastembed:bge-small", 2)
	if err != nil {
		t.Fatalf("fastembed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 0.3 {
		t.Fatalf("vectors = %v", vecs)
	}
}

func TestFastembedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fastembedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer srv.Close()
	t.Setenv("FASTEMBED_URL", srv.URL)

	fn := Default()
	if _, err := fn(context.Background(), []string{"a", "b"}, "fastembed:bge-small", 1); err == nil {
		t.Fatal("count mismatch must fail")
	}
}
