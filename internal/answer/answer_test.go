package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/config"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt([]string{"- USB history: Devices connected", "  Significance: Exfiltration"}, "Where is USB history?")
	assert.True(t, strings.HasPrefix(p, "Instruction: Use the following forensic knowledge"))
	assert.Contains(t, p, "Context:\n- USB history: Devices connected\n  Significance: Exfiltration\n\n")
	assert.True(t, strings.HasSuffix(p, "Question: Where is USB history?\n\nAnswer:"))
}

func TestPlaceholder(t *testing.T) {
	got, err := Placeholder{}.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderText, got)
}

func TestNew(t *testing.T) {
	g, err := New(config.AnswerConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Placeholder{}, g)

	g, err = New(config.AnswerConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OllamaGenerator{}, g)

	_, err = New(config.AnswerConfig{Provider: "gpt"}, nil)
	assert.Error(t, err)
}

func TestOllamaGenerator_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  Check the USBSTOR key.\n", "done": true})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL+"/", "llama3", time.Second, zap.NewNop())
	text, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Check the USBSTOR key.", text)
	assert.Equal(t, generateRequest{Model: "llama3", Prompt: "prompt", Stream: false}, got)
}

func TestOllamaGenerator_failures(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"status":      func(w http.ResponseWriter, r *http.Request) { http.Error(w, "no model", http.StatusNotFound) },
		"error field": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"error":"model not found"}`)) },
		"empty":       func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"response":"  "}`)) },
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			_, err := NewOllamaGenerator(srv.URL, "llama3", time.Second, zap.NewNop()).Generate(context.Background(), "p")
			assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		})
	}
}
