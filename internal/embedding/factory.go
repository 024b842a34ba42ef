package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/pkg/utils"
	"go.uber.org/zap"
)

// New builds the embedder named by cfg.Provider, producing vectors of the given dimensions.
// Successful embeddings are cached when cfg.CacheSize > 0 and every call is timed on rec.
func New(cfg config.EmbeddingConfig, dimensions int, logger *zap.Logger, rec metrics.Recorder) (Embedder, error) {
	logger = utils.OrNop(logger)
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "ollama", "":
		e, err = NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: dimensions,
			Timeout:    cfg.Timeout,
		}, WithLogger(logger))
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, dimensions, cfg.MaxTokens)
	case "mock":
		e = NewMockEmbedder(dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachingEmbedder(e, cfg.CacheSize)
	}
	return Instrument(e, rec), nil
}

type instrumented struct {
	Embedder
	rec metrics.Recorder
}

// Instrument records the duration and outcome of every Embed call on rec.
func Instrument(e Embedder, rec metrics.Recorder) Embedder {
	if rec == nil {
		return e
	}
	return &instrumented{Embedder: e, rec: rec}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	done := metrics.TimeOp(i.rec, metrics.OpEmbed)
	v, err := i.Embedder.Embed(ctx, text)
	done(err == nil)
	return v, err
}
