package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/embeddings/ollama"
)

// embedServer answers /api/embed with one vector of the given size per input
// and counts the requests it served.
func embedServer(t *testing.T, wantModel string, dims int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /api/embed", r.Method, r.URL.Path)
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = make([]float32, dims)
			vecs[i][0] = float32(i + 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": wantModel, "embeddings": vecs})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := ollama.New("", ""); err == nil {
		t.Error("empty model: want error")
	}
	if _, err := ollama.New("", "nomic-embed-text", ollama.WithDimensions(-1)); err == nil {
		t.Error("negative dimensions: want error")
	}
}

func TestEmbedBatch(t *testing.T) {
	t.Parallel()
	srv, _ := embedServer(t, "nomic-embed-text", 4, http.StatusOK)
	p, err := ollama.New(srv.URL+"/", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 3 {
		t.Errorf("vectors = %v", vecs)
	}

	vec, err := p.Embed(context.Background(), "single")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("len = %d, want 4", len(vec))
	}

	if got, err := p.EmbedBatch(context.Background(), nil); got != nil || err != nil {
		t.Errorf("empty batch = %v, %v; want nil, nil", got, err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := embedServer(t, "nomic-embed-text", 4, http.StatusNotFound)
	p, _ := ollama.New(srv.URL, "nomic-embed-text")
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("want error for 404")
	}
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	t.Run("known model needs no probe", func(t *testing.T) {
		t.Parallel()
		srv, calls := embedServer(t, "nomic-embed-text", 4, http.StatusOK)
		p, _ := ollama.New(srv.URL, "nomic-embed-text")
		if got := p.Dimensions(); got != 768 {
			t.Errorf("Dimensions = %d, want 768", got)
		}
		if calls.Load() != 0 {
			t.Errorf("requests = %d, want 0", calls.Load())
		}
	})

	t.Run("explicit dimensions win", func(t *testing.T) {
		t.Parallel()
		p, _ := ollama.New("http://127.0.0.1:1", "custom", ollama.WithDimensions(256))
		if got := p.Dimensions(); got != 256 {
			t.Errorf("Dimensions = %d, want 256", got)
		}
	})

	t.Run("unknown model is probed once", func(t *testing.T) {
		t.Parallel()
		srv, calls := embedServer(t, "custom-embed", 12, http.StatusOK)
		p, _ := ollama.New(srv.URL, "custom-embed")
		for range 3 {
			if got := p.Dimensions(); got != 12 {
				t.Errorf("Dimensions = %d, want 12", got)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("requests = %d, want 1", calls.Load())
		}
	})
}
