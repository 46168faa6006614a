package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RunRow is one finished run, flattened for querying. The per-hop detail is
// kept as a JSON blob; aggregate columns are extracted so stats queries do
// not have to parse it.
type RunRow struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID               string    `bun:",pk"`
	Timestamp        string    `bun:",notnull"`
	Question         string    `bun:",notnull"`
	FinalAnswer      string    `bun:",nullzero"`
	Status           string    `bun:",notnull"`
	FailedStage      string    `bun:",nullzero"`
	ErrorMessage     string    `bun:",nullzero"`
	HopCount         int       `bun:",notnull"`
	HopsJSON         string    `bun:",nullzero"` // JSON blob
	TotalLatencyMS   int64     `bun:",notnull"`
	PromptTokens     int       `bun:",notnull"`
	CompletionTokens int       `bun:",notnull"`
	Cost             float64   `bun:",notnull"`
	CreatedAt        time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// RunStats aggregates across all stored runs.
type RunStats struct {
	TotalRuns    int64   `bun:"total_runs"`
	FailedRuns   int64   `bun:"failed_runs"`
	AvgHops      float64 `bun:"avg_hops"`
	AvgLatencyMS float64 `bun:"avg_latency_ms"`
	TotalTokens  int64   `bun:"total_tokens"`
	TotalCost    float64 `bun:"total_cost"`
}
