package repository

import (
	"context"
	"errors"
)

// Passage is one retrieved unit of corpus text with its relevance score and
// source reference. Once returned by a Retriever it is owned by the run's
// accumulator; duplicates (same ID across hops) are permitted.
type Passage struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float32 `json:"score"`
}

// ErrRetrievalFailed marks transport or service failures during retrieval so
// the orchestrator can distinguish a failed query from a valid empty result
// set. Adapters wrap it with the underlying cause.
var ErrRetrievalFailed = errors.New("retrieval failed")

// Retriever defines the interface for vector-index search. Results are
// ordered by descending relevance score; an empty slice is a valid result.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]Passage, error)
}
