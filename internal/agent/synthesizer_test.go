package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

func TestSynthesizeReturnsAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion("Paris is the capital of France."),
	}}
	synth := NewSynthesizer(llm, "m", zerolog.Nop())

	passages := []repository.Passage{
		{ID: "1", Text: "Paris is the capital of France.", Source: "Paris", Score: 0.95},
	}

	answer, usage, err := synth.Synthesize(context.Background(), "What is the capital of France?", passages, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(answer, "Paris") {
		t.Errorf("unexpected answer: %q", answer)
	}
	if usage.Cost != 0.001 {
		t.Errorf("usage not passed through: %+v", usage)
	}

	prompt := llm.messages[0]
	if !strings.Contains(prompt, "[Source 1 | Paris]") {
		t.Errorf("prompt must cite passage sources:\n%s", prompt)
	}
	if strings.Contains(prompt, "hop budget was exhausted") {
		t.Errorf("natural stop must not mention the hop budget:\n%s", prompt)
	}
}

func TestSynthesizeMentionsExhaustedBudget(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{textCompletion("partial answer")}}
	synth := NewSynthesizer(llm, "m", zerolog.Nop())

	if _, _, err := synth.Synthesize(context.Background(), "q", nil, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(llm.messages[0], "hop budget was exhausted") {
		t.Errorf("forced synthesis must be flagged in the prompt:\n%s", llm.messages[0])
	}
}

func TestSynthesizeEmptyAnswerIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{textCompletion("   \n")}}
	synth := NewSynthesizer(llm, "m", zerolog.Nop())

	if _, _, err := synth.Synthesize(context.Background(), "q", nil, false); err == nil {
		t.Fatal("expected error on empty answer")
	}
}

func TestSynthesizeTransportErrorIsFatal(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("unreachable")}}
	synth := NewSynthesizer(llm, "m", zerolog.Nop())

	if _, _, err := synth.Synthesize(context.Background(), "q", nil, false); err == nil {
		t.Fatal("expected error to surface")
	}
}
