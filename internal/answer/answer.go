// Package answer turns a grounding prompt into answer text.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/pkg/utils"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the generation backend fails.
var ErrUnavailable = errors.New("answer generation unavailable")

// PlaceholderText is returned by Placeholder.
const PlaceholderText = "Based on the digital forensic evidence provided, I can answer your question with " +
	"information from our knowledge base. This would typically be processed through an LLM, " +
	"but for now this is a placeholder response."

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Placeholder answers every prompt with PlaceholderText.
type Placeholder struct{}

func (Placeholder) Generate(context.Context, string) (string, error) {
	return PlaceholderText, nil
}

// BuildPrompt combines context lines and the question into a grounding prompt.
func BuildPrompt(contextLines []string, question string) string {
	var b strings.Builder
	b.WriteString("Instruction: Use the following forensic knowledge to answer the question accurately. ")
	b.WriteString("If the information doesn't contain an answer to the question, state that you don't have ")
	b.WriteString("enough information rather than making up an answer.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(contextLines, "\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// New builds the generator named by cfg.Provider.
func New(cfg config.AnswerConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case "placeholder", "":
		return Placeholder{}, nil
	case "ollama":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Timeout, utils.OrNop(logger)), nil
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.Provider)
	}
}
