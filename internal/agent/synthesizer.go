package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

const synthesizerSystemPrompt = `You are a research synthesizer. Given a question and accumulated research context (passages retrieved across multiple search hops), provide a comprehensive, well-structured answer.

Guidelines:
- Synthesize information from multiple passages into a coherent answer
- Note connections between different pieces of information
- Be specific: cite facts from the passages rather than making general statements
- If the evidence is insufficient or contradictory, say so
- Keep the answer focused and concise (2-4 paragraphs)`

const budgetExhaustedNote = `Note: the research hop budget was exhausted before the reader chose to stop, so the passages below may not cover every aspect of the question. Acknowledge gaps where they exist.`

// Synthesizer produces the final answer from the full accumulated passage
// set. Its output is free text; there is no parse fallback here because an
// empty or failed response has no safe placeholder and is fatal for the run.
type Synthesizer struct {
	llm    repository.LLMClient
	model  string
	logger zerolog.Logger
}

// NewSynthesizer creates a synthesizer using the given model.
func NewSynthesizer(llm repository.LLMClient, model string, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		llm:    llm,
		model:  model,
		logger: logger.With().Str("component", "synthesizer").Logger(),
	}
}

// Synthesize issues one LLM call over the question and every accumulated
// passage. budgetExhausted tells the model that synthesis was forced by the
// hop limit rather than chosen by the reader.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []repository.Passage, budgetExhausted bool) (string, repository.Usage, error) {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[Source %d | %s] %s\n\n", i+1, p.Source, p.Text)
	}

	userMessage := fmt.Sprintf("Question: %s\n\nResearch Context:\n%s", question, strings.TrimRight(b.String(), "\n"))
	if budgetExhausted {
		userMessage = budgetExhaustedNote + "\n\n" + userMessage
	}

	completion, err := s.llm.Complete(ctx, s.model, synthesizerSystemPrompt, userMessage)
	if err != nil {
		return "", repository.Usage{}, fmt.Errorf("synthesizer: %w", err)
	}

	answer := strings.TrimSpace(completion.Text)
	if answer == "" {
		return "", completion.Usage, fmt.Errorf("synthesizer: empty answer from model %s", s.model)
	}

	s.logger.Debug().Int("passages", len(passages)).Bool("budget_exhausted", budgetExhausted).Msg("answer synthesized")
	return answer, completion.Usage, nil
}
