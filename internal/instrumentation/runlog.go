package instrumentation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

// Run status markers.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// HopRecord captures one completed retrieve→read cycle. It is immutable once
// appended to a Run.
type HopRecord struct {
	HopIndex          int              `json:"hop_index"`
	Queries           []string         `json:"queries"`
	FailedQueries     []string         `json:"failed_queries,omitempty"`
	PassagesRetrieved int              `json:"passages_retrieved"`
	SearchLatencyMS   int64            `json:"search_latency_ms"`
	ReaderLatencyMS   int64            `json:"reader_latency_ms"`
	HopLatencyMS      int64            `json:"hop_latency_ms"`
	ReaderUsage       repository.Usage `json:"reader_usage"`
	Decision          string           `json:"decision,omitempty"`
}

// Run is the structured record of one question's journey through the loop.
// It is created at run start and written exactly once, at the run's natural
// conclusion or (partially, with a failure marker) on fatal failure.
type Run struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Question  string `json:"question"`

	Hops        []HopRecord `json:"hops"`
	FinalAnswer string      `json:"final_answer,omitempty"`

	PlanLatencyMS      int64            `json:"plan_latency_ms"`
	PlanUsage          repository.Usage `json:"plan_usage"`
	SynthesisLatencyMS int64            `json:"synthesis_latency_ms"`
	SynthesisUsage     repository.Usage `json:"synthesis_usage"`

	TotalLatencyMS int64            `json:"total_latency_ms"`
	TotalUsage     repository.Usage `json:"total_usage"`

	Status      string `json:"status"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TotalTokens returns prompt plus completion tokens across every LLM call in
// the run.
func (r *Run) TotalTokens() int {
	return r.TotalUsage.PromptTokens + r.TotalUsage.CompletionTokens
}

// Summary returns the one-line human summary printed after a run.
func (r *Run) Summary() string {
	return fmt.Sprintf(
		"Hops: %d | Total latency: %.1fs | Tokens used by LLM: %d | Cost: $%.4f",
		len(r.Hops),
		float64(r.TotalLatencyMS)/1000.0,
		r.TotalTokens(),
		r.TotalUsage.Cost,
	)
}

// RunLogger appends one JSON record per run to an append-only JSONL file. It
// observes; it never participates in control decisions.
type RunLogger struct {
	path   string
	logger zerolog.Logger
}

// NewRunLogger creates the log directory if needed and returns a logger that
// appends to <dir>/runs.jsonl.
func NewRunLogger(dir string, logger zerolog.Logger) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run log directory %q: %w", dir, err)
	}
	return &RunLogger{
		path:   filepath.Join(dir, "runs.jsonl"),
		logger: logger.With().Str("component", "runlog").Logger(),
	}, nil
}

// Write appends the run record as a single JSON line.
func (l *RunLogger) Write(run *Run) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer func() { _ = file.Close() }()

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}

	l.logger.Debug().Str("run_id", run.ID).Str("status", run.Status).Msg("run record written")
	return nil
}
