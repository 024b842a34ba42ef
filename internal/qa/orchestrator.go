// Package qa answers forensic questions from retrieved graph context.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/answer"
	"github.com/hyperjump/dcia/internal/embedding"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/retrieval"
	"github.com/hyperjump/dcia/internal/vector"
	"github.com/hyperjump/dcia/pkg/utils"
)

// DefaultTopK is how many nodes ground an answer.
const DefaultTopK = 5

// FallbackAnswer is returned when nothing relevant is retrieved.
const FallbackAnswer = "I don't have specific information about that in my knowledge base. " +
	"Please try a different question related to digital forensics."

var (
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrEmptyEmbedding is returned when the provider yields no vector for the question.
	ErrEmptyEmbedding = errors.New("failed to generate embedding for question")
)

// Orchestrator wires embedding, retrieval and answer generation together. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	embedder  embedding.Embedder
	retriever *retrieval.Service
	generator answer.Generator
	topK      int
	logger    *zap.Logger
	recorder  metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTopK sets how many results ground an answer.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = utils.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = metrics.OrNop(r) }
}

// New creates an Orchestrator. A nil generator answers with the placeholder text.
func New(emb embedding.Embedder, retriever *retrieval.Service, gen answer.Generator, opts ...Option) *Orchestrator {
	if gen == nil {
		gen = answer.Placeholder{}
	}
	o := &Orchestrator{
		embedder:  emb,
		retriever: retriever,
		generator: gen,
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
		recorder:  metrics.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask answers question. Blank questions fail with ErrEmptyQuestion before any provider
// or store call. An empty retrieval is not an error: it yields FallbackAnswer and no sources.
func (o *Orchestrator) Ask(ctx context.Context, question string) (resp *models.AskResponse, err error) {
	done := metrics.TimeOp(o.recorder, metrics.OpAsk)
	defer func() { done(err == nil) }()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	o.logger.Info("processing question", zap.String("question", utils.Truncate(question, 100)))

	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}

	results, err := o.retriever.Search(ctx, vec, o.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	if len(results) == 0 {
		o.recorder.IncFallbackAnswers()
		return &models.AskResponse{Answer: FallbackAnswer, Sources: []models.Source{}}, nil
	}

	lines, sources := AssembleContext(results)
	text, err := o.generator.Generate(ctx, answer.BuildPrompt(lines, question))
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	return &models.AskResponse{Answer: text, Sources: sources}, nil
}

// AssembleContext renders results into prompt context lines and reported sources.
func AssembleContext(results []models.RetrievalResult) ([]string, []models.Source) {
	lines := make([]string, 0, 2*len(results))
	sources := make([]models.Source, 0, len(results))
	for i := range results {
		r := &results[i]
		name := r.Name
		if name == "" {
			name = "Unknown item"
		}
		if r.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", name, r.Description))
		}
		if r.Significance != "" {
			lines = append(lines, "  Significance: "+r.Significance)
		}
		sources = append(sources, models.Source{
			Name:           name,
			Type:           r.PrimaryLabel(),
			RelevanceScore: vector.RelevanceScore(r.Score),
		})
	}
	return lines, sources
}
