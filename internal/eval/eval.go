package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hopsearch/hopsearch/internal/instrumentation"
)

// Question is one entry of an evaluation set. The expected answer and type
// are optional and carried through for offline grading.
type Question struct {
	ID             string `json:"id,omitempty"`
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer,omitempty"`
	Type           string `json:"type,omitempty"`
}

// Asker answers a single question end to end.
type Asker interface {
	Ask(ctx context.Context, question string) (*instrumentation.Run, error)
}

// Result pairs a question with its run. Exactly one of Run and Err is set.
type Result struct {
	Question Question             `json:"question"`
	Run      *instrumentation.Run `json:"run,omitempty"`
	Err      string               `json:"error,omitempty"`
}

// Report holds every result of one evaluation pass, in input order.
type Report struct {
	Results []Result `json:"results"`
}

// LoadQuestions parses a JSONL evaluation set. Blank lines are skipped and a
// malformed line loses only itself: it is logged with its line number and the
// rest of the set still loads. An error is returned only when the input is
// unreadable or yields no questions at all.
func LoadQuestions(r io.Reader, logger zerolog.Logger) ([]Question, error) {
	var questions []Question

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var q Question
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			logger.Warn().Int("line", line).Err(err).Msg("malformed question skipped")
			continue
		}
		if q.Question == "" {
			logger.Warn().Int("line", line).Msg("question with empty text skipped")
			continue
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read question set: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question set is empty")
	}
	return questions, nil
}

// LoadQuestionsFile reads a JSONL evaluation set from disk.
func LoadQuestionsFile(path string, logger zerolog.Logger) ([]Question, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question set %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	return LoadQuestions(file, logger)
}

// Runner drives an evaluation set through the agent with bounded concurrency.
type Runner struct {
	asker       Asker
	concurrency int
	logger      zerolog.Logger
}

func NewRunner(asker Asker, concurrency int, logger zerolog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		asker:       asker,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "eval").Logger(),
	}
}

// Run answers every question and returns the report in input order. A failed
// question is recorded in its result and does not stop the others; only
// cancellation aborts the pass.
func (r *Runner) Run(ctx context.Context, questions []Question) (*Report, error) {
	results := make([]Result, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, q := range questions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := r.asker.Ask(gctx, q.Question)
			if err != nil {
				r.logger.Error().Str("question_id", q.ID).Err(err).Msg("question failed")
				results[i] = Result{Question: q, Err: err.Error()}
				return nil
			}
			r.logger.Info().
				Str("question_id", q.ID).
				Int("hops", len(run.Hops)).
				Int64("latency_ms", run.TotalLatencyMS).
				Msg("question complete")
			results[i] = Result{Question: q, Run: run}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{Results: results}, nil
}

// WriteJSONL appends one JSON line per result.
func (rep *Report) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for i := range rep.Results {
		if err := enc.Encode(&rep.Results[i]); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return nil
}

// Summary aggregates the pass into a one-paragraph human report.
func (rep *Report) Summary() string {
	var (
		completed   int
		failed      int
		totalHops   int
		totalMS     int64
		totalTokens int
		totalCost   float64
	)
	for _, res := range rep.Results {
		if res.Run == nil {
			failed++
			continue
		}
		completed++
		totalHops += len(res.Run.Hops)
		totalMS += res.Run.TotalLatencyMS
		totalTokens += res.Run.TotalTokens()
		totalCost += res.Run.TotalUsage.Cost
	}

	avgHops := 0.0
	avgLatency := 0.0
	if completed > 0 {
		avgHops = float64(totalHops) / float64(completed)
		avgLatency = float64(totalMS) / float64(completed) / 1000.0
	}

	return fmt.Sprintf(
		"Questions: %d | Completed: %d | Failed: %d | Avg hops: %.2f | Avg latency: %.1fs | Total tokens: %d | Total cost: $%.4f",
		len(rep.Results), completed, failed, avgHops, avgLatency, totalTokens, totalCost,
	)
}
