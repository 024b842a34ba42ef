package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestNew_providers(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "ollama"}, 384, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Errorf("expected *OllamaEmbedder, got %T", e)
	}

	e, err = New(config.EmbeddingConfig{Provider: "mock", CacheSize: 10}, 16, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachingEmbedder); !ok {
		t.Errorf("expected *CachingEmbedder, got %T", e)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions: got %d", e.Dimensions())
	}

	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}, 16, nil, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestInstrument(t *testing.T) {
	rec := metrics.NewPrometheus()
	e, err := New(config.EmbeddingConfig{Provider: "mock"}, 8, nil, rec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "sms database"); err != nil {
		t.Fatal(err)
	}
	_, _ = e.Embed(context.Background(), "")

	if n := testutil.CollectAndCount(rec.Registry(), "dcia_ops_total"); n != 2 {
		t.Errorf("expected success and failure series, got %d", n)
	}
}
