package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

func TestReadSynthesizeDecision(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion(`{"decision": "synthesize"}`),
	}}
	reader := NewReader(llm, "m", zerolog.Nop())

	decision, usage, err := reader.Read(context.Background(), "q", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != DecisionSynthesize {
		t.Errorf("expected synthesize, got %v", decision.Kind)
	}
	if usage.CompletionTokens != 5 {
		t.Errorf("usage not passed through: %+v", usage)
	}
}

func TestReadContinueDecision(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion(`{"decision": "continue", "follow_up_queries": ["follow up 1", "follow up 2"]}`),
	}}
	reader := NewReader(llm, "m", zerolog.Nop())

	decision, _, err := reader.Read(context.Background(), "q", nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != DecisionContinue {
		t.Fatalf("expected continue, got %v", decision.Kind)
	}
	if len(decision.FollowUpQueries) != 2 || decision.FollowUpQueries[0] != "follow up 1" {
		t.Errorf("unexpected follow-up queries: %v", decision.FollowUpQueries)
	}
}

func TestReadMalformedOutputResolvesToSynthesize(t *testing.T) {
	for _, text := range []string{
		"not json at all",
		`{"follow_up_queries": ["q"]}`,              // missing discriminator
		`{"decision": "retrieve_more"}`,             // unknown discriminator
		`{"decision": "continue"}`,                  // continue with no queries
		`{"decision": "continue", "follow_up_queries": []}`,
		`{"decision": "continue", "follow_up_queries": ["", " "]}`,
	} {
		llm := &scriptedLLM{responses: []repository.Completion{textCompletion(text)}}
		reader := NewReader(llm, "m", zerolog.Nop())

		decision, _, err := reader.Read(context.Background(), "q", nil, 0)
		if err != nil {
			t.Fatalf("parse ambiguity must not error for %q: %v", text, err)
		}
		if decision.Kind != DecisionSynthesize {
			t.Errorf("expected synthesize fallback for %q, got %v", text, decision.Kind)
		}
	}
}

func TestReadExtractsObjectFromProse(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion("Thinking...\n{\"decision\": \"continue\", \"follow_up_queries\": [\"next\"]}\nDone."),
	}}
	reader := NewReader(llm, "m", zerolog.Nop())

	decision, _, err := reader.Read(context.Background(), "q", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != DecisionContinue || len(decision.FollowUpQueries) != 1 {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestReadPresentsFullAccumulator(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion(`{"decision": "synthesize"}`),
	}}
	reader := NewReader(llm, "m", zerolog.Nop())

	passages := []repository.Passage{
		{ID: "1", Text: "first hop evidence", Source: "A", Score: 0.9},
		{ID: "2", Text: "second hop evidence", Source: "B", Score: 0.8},
		{ID: "2", Text: "second hop evidence", Source: "B", Score: 0.8}, // duplicate id tolerated
	}

	if _, _, err := reader.Read(context.Background(), "the question", passages, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := llm.messages[0]
	if !strings.Contains(prompt, "first hop evidence") || !strings.Contains(prompt, "second hop evidence") {
		t.Errorf("reader prompt must include all accumulated passages:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[Passage 3") {
		t.Errorf("duplicate passages must not be collapsed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "the question") {
		t.Errorf("reader prompt must include the question:\n%s", prompt)
	}
}

func TestReadTruncatesOldContext(t *testing.T) {
	llm := &scriptedLLM{responses: []repository.Completion{
		textCompletion(`{"decision": "synthesize"}`),
	}}
	reader := NewReader(llm, "m", zerolog.Nop())

	long := strings.Repeat("x", 2000)
	passages := make([]repository.Passage, 0, readerRecentWindow+1)
	passages = append(passages, repository.Passage{ID: "old", Text: long})
	for i := 0; i < readerRecentWindow; i++ {
		passages = append(passages, repository.Passage{ID: "new", Text: "recent"})
	}

	if _, _, err := reader.Read(context.Background(), "q", passages, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := llm.messages[0]
	if strings.Contains(prompt, long) {
		t.Error("old passages should be truncated in the reader prompt")
	}
	if !strings.Contains(prompt, strings.Repeat("x", readerTruncateChars)+"...") {
		t.Error("truncated old passage should still appear")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("é", 400) // 2 bytes per rune

	got := truncate(long, 301)
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got[len(got)-6:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
	// 301 lands mid-rune, so the cut backs up one byte.
	if len(got) != 300+len("...") {
		t.Errorf("unexpected length %d", len(got))
	}

	if short := truncate("héllo", 100); short != "héllo" {
		t.Errorf("short strings must pass through, got %q", short)
	}
}

func TestReadSurfacesTransportError(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("boom")}}
	reader := NewReader(llm, "m", zerolog.Nop())

	if _, _, err := reader.Read(context.Background(), "q", nil, 0); err == nil {
		t.Fatal("expected transport error to surface")
	}
}
