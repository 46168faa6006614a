package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

// maxPlannedQueries bounds how many initial search queries a plan may carry.
const maxPlannedQueries = 4

const plannerSystemPrompt = `You are a research query planner. Given a complex question, decompose it into 1-4 specific search queries that would help find relevant information. Each query should target a different aspect of the question.

Respond with ONLY a JSON array of query strings. Example:
["query 1", "query 2", "query 3"]

Do not include any other text, explanation, or formatting.`

// Planner turns the raw question into the initial set of search queries.
type Planner struct {
	llm    repository.LLMClient
	model  string
	logger zerolog.Logger
}

// NewPlanner creates a planner using the given model.
func NewPlanner(llm repository.LLMClient, model string, logger zerolog.Logger) *Planner {
	return &Planner{
		llm:    llm,
		model:  model,
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// Plan issues one LLM call and returns 1 to 4 queries. A transport error is
// returned as-is (the capability being unreachable at plan time is fatal for
// the run), but malformed model output never fails: the raw question is
// substituted as the sole query.
func (p *Planner) Plan(ctx context.Context, question string) ([]string, repository.Usage, error) {
	completion, err := p.llm.Complete(ctx, p.model, plannerSystemPrompt, question)
	if err != nil {
		return nil, repository.Usage{}, fmt.Errorf("planner: %w", err)
	}

	queries := parseQueries(completion.Text, question)
	p.logger.Debug().Int("queries", len(queries)).Msg("plan ready")
	return queries, completion.Usage, nil
}

// parseQueries decodes the model output as a JSON array of strings. It
// tolerates surrounding prose by extracting the outermost [...] and enforces
// the 1..4 bound; anything unusable falls back to the question itself.
func parseQueries(text, question string) []string {
	trimmed := strings.TrimSpace(text)

	var raw []string
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		raw = nil
		if start := strings.Index(trimmed, "["); start >= 0 {
			if end := strings.LastIndex(trimmed, "]"); end > start {
				_ = json.Unmarshal([]byte(trimmed[start:end+1]), &raw)
			}
		}
	}

	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}

	if len(queries) == 0 {
		return []string{question}
	}
	if len(queries) > maxPlannedQueries {
		queries = queries[:maxPlannedQueries]
	}
	return queries
}
