package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

const readerSystemPrompt = `You are a research reader. You are given a question and the passages retrieved so far across one or more research hops.

Your job is to decide:
1. If you have enough information to answer the question, respond with:
   {"decision": "synthesize"}

2. If you need more information, respond with:
   {"decision": "continue", "follow_up_queries": ["query 1", "query 2"]}
   Provide 1-3 follow-up queries targeting specific gaps in your knowledge.

Consider:
- What aspects of the question remain unanswered?
- What new leads do the passages suggest?
- Are there connections between passages that need more investigation?

Respond with ONLY the JSON object. No other text.`

// How many of the most recent passages the reader prompt shows in full; older
// ones are truncated to keep the prompt bounded.
const (
	readerRecentWindow  = 10
	readerTruncateChars = 300
	readerFullTextLimit = 1500
)

// DecisionKind discriminates the reader's two outcomes.
type DecisionKind string

const (
	DecisionContinue   DecisionKind = "continue"
	DecisionSynthesize DecisionKind = "synthesize"
)

// Decision is the reader's per-hop choice: continue with follow-up queries or
// proceed to synthesis. FollowUpQueries is non-empty exactly when Kind is
// DecisionContinue.
type Decision struct {
	Kind            DecisionKind
	FollowUpQueries []string
}

// Reader judges evidence sufficiency over the full accumulated passage set.
type Reader struct {
	llm    repository.LLMClient
	model  string
	logger zerolog.Logger
}

// NewReader creates a reader using the given model.
func NewReader(llm repository.LLMClient, model string, logger zerolog.Logger) *Reader {
	return &Reader{
		llm:    llm,
		model:  model,
		logger: logger.With().Str("component", "reader").Logger(),
	}
}

// Read issues one LLM call over everything retrieved so far and returns the
// decision. Malformed or ambiguous model output resolves to Synthesize, the
// safe default that guarantees forward progress. A transport error is
// returned as an error; only parse ambiguity has the fallback.
func (r *Reader) Read(ctx context.Context, question string, passages []repository.Passage, hopIndex int) (Decision, repository.Usage, error) {
	userMessage := fmt.Sprintf(
		"Question: %s\n\nHop: %d\n\nRetrieved Passages:\n%s",
		question, hopIndex, formatPassagesForReader(passages),
	)

	completion, err := r.llm.Complete(ctx, r.model, readerSystemPrompt, userMessage)
	if err != nil {
		return Decision{}, repository.Usage{}, fmt.Errorf("reader: %w", err)
	}

	decision := parseDecision(completion.Text)
	r.logger.Debug().
		Int("hop", hopIndex).
		Int("passages", len(passages)).
		Str("decision", string(decision.Kind)).
		Msg("read complete")
	return decision, completion.Usage, nil
}

// formatPassagesForReader renders the accumulated passages, showing the most
// recent ones in full and truncating older context.
func formatPassagesForReader(passages []repository.Passage) string {
	if len(passages) == 0 {
		return "(no passages retrieved)"
	}

	var b strings.Builder
	recentFrom := len(passages) - readerRecentWindow
	for i, p := range passages {
		limit := readerFullTextLimit
		if i < recentFrom {
			limit = readerTruncateChars
		}
		fmt.Fprintf(&b, "[Passage %d | %s | score %.2f] %s\n\n", i+1, p.Source, p.Score, truncate(p.Text, limit))
	}
	return strings.TrimRight(b.String(), "\n")
}

type readerOutput struct {
	Decision        string   `json:"decision"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// parseDecision decodes the reader's structured response. The fallback is the
// contract: missing discriminator, unknown decision values, broken JSON, and
// a "continue" with no usable queries all resolve to Synthesize.
func parseDecision(text string) Decision {
	jsonStr := strings.TrimSpace(text)
	if start := strings.Index(jsonStr, "{"); start >= 0 {
		if end := strings.LastIndex(jsonStr, "}"); end > start {
			jsonStr = jsonStr[start : end+1]
		}
	}

	var output readerOutput
	if err := json.Unmarshal([]byte(jsonStr), &output); err != nil {
		return Decision{Kind: DecisionSynthesize}
	}

	if output.Decision != string(DecisionContinue) {
		return Decision{Kind: DecisionSynthesize}
	}

	queries := make([]string, 0, len(output.FollowUpQueries))
	for _, q := range output.FollowUpQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		// Continue with nothing to pursue is a stop.
		return Decision{Kind: DecisionSynthesize}
	}

	return Decision{Kind: DecisionContinue, FollowUpQueries: queries}
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
