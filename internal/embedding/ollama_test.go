package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	var got ollamaEmbedRequest
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	})

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Embed(context.Background(), "USB device history")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || v[1] != float32(0.2) {
		t.Errorf("vector: got %v", v)
	}
	if got.Model != DefaultOllamaModel || got.Prompt != "USB device history" {
		t.Errorf("request body: %+v", got)
	}
	if e.Dimensions() != 3 {
		t.Errorf("Dimensions: got %d", e.Dimensions())
	}
}

func TestOllamaEmbedder_failuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"missing vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{"wrong dimensions", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOllamaServer(t, tt.handler)
			e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Dimensions: 3})
			if err != nil {
				t.Fatal(err)
			}
			_, err = e.Embed(context.Background(), "text")
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestOllamaEmbedder_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: url, Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "text"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestOllamaEmbedder_timeout(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	e, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Dimensions: 3, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = e.Embed(context.Background(), "slow")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not applied")
	}
}

func TestOllamaEmbedder_emptyText(t *testing.T) {
	e, err := NewOllamaEmbedder(OllamaConfig{Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestNewOllamaEmbedder_invalidDimensions(t *testing.T) {
	if _, err := NewOllamaEmbedder(OllamaConfig{}); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
