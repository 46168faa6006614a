package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
	"github.com/hopsearch/hopsearch/internal/instrumentation"
)

// RunSink receives the finished run record. Sink failures are reported but
// never abort or corrupt answer delivery.
type RunSink interface {
	Write(run *instrumentation.Run) error
}

// Options bound a single run.
type Options struct {
	MaxHops int
	TopK    int
}

// Agent owns the hop state machine: it calls the planner once, alternates
// retrieval and reading up to the hop budget, then synthesizes exactly once.
// All run-scoped state (the passage accumulator, the run record) lives in
// Ask's frame, so independent runs are fully isolated and may execute
// concurrently.
type Agent struct {
	planner     *Planner
	reader      *Reader
	synthesizer *Synthesizer
	retriever   repository.Retriever
	sinks       []RunSink
	opts        Options
	logger      zerolog.Logger
}

// New assembles an agent. Any number of sinks may observe finished runs; nil
// sinks are ignored.
func New(planner *Planner, reader *Reader, synthesizer *Synthesizer, retriever repository.Retriever, opts Options, logger zerolog.Logger, sinks ...RunSink) *Agent {
	kept := make([]RunSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Agent{
		planner:     planner,
		reader:      reader,
		synthesizer: synthesizer,
		retriever:   retriever,
		sinks:       kept,
		opts:        opts,
		logger:      logger.With().Str("component", "agent").Logger(),
	}
}

// Ask runs the full loop for one question and returns the finished run
// record. On fatal failure the partial record (with a failure marker) is
// still written to the sinks and a non-nil error is returned.
func (a *Agent) Ask(ctx context.Context, question string) (*instrumentation.Run, error) {
	runStart := time.Now()
	run := &instrumentation.Run{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Question:  question,
	}

	// Plan initial queries.
	planStart := time.Now()
	pending, planUsage, err := a.planner.Plan(ctx, question)
	run.PlanLatencyMS = time.Since(planStart).Milliseconds()
	run.PlanUsage = planUsage
	run.TotalUsage.Add(planUsage)
	if err != nil {
		return nil, a.fail(run, "planner", err, runStart)
	}

	a.logger.Debug().Str("run_id", run.ID).Strs("queries", pending).Msg("plan generated")

	var accumulated []repository.Passage
	budgetExhausted := false

	for hop := 0; hop < a.opts.MaxHops; hop++ {
		hopStart := time.Now()

		newPassages, failedQueries, err := a.retrieveAll(ctx, pending)
		searchLatency := time.Since(hopStart).Milliseconds()
		if err != nil {
			run.Hops = append(run.Hops, instrumentation.HopRecord{
				HopIndex:        hop,
				Queries:         pending,
				FailedQueries:   failedQueries,
				SearchLatencyMS: searchLatency,
				HopLatencyMS:    time.Since(hopStart).Milliseconds(),
			})
			return nil, a.fail(run, "retriever", err, runStart)
		}

		// Passages are only ever appended; the accumulator is never
		// reordered and duplicate ids are allowed.
		accumulated = append(accumulated, newPassages...)

		readStart := time.Now()
		decision, readerUsage, err := a.reader.Read(ctx, question, accumulated, hop)
		readerLatency := time.Since(readStart).Milliseconds()
		run.TotalUsage.Add(readerUsage)
		if err != nil {
			run.Hops = append(run.Hops, instrumentation.HopRecord{
				HopIndex:          hop,
				Queries:           pending,
				FailedQueries:     failedQueries,
				PassagesRetrieved: len(newPassages),
				SearchLatencyMS:   searchLatency,
				ReaderLatencyMS:   readerLatency,
				HopLatencyMS:      time.Since(hopStart).Milliseconds(),
				ReaderUsage:       readerUsage,
			})
			return nil, a.fail(run, "reader", err, runStart)
		}

		record := instrumentation.HopRecord{
			HopIndex:          hop,
			Queries:           pending,
			FailedQueries:     failedQueries,
			PassagesRetrieved: len(newPassages),
			SearchLatencyMS:   searchLatency,
			ReaderLatencyMS:   readerLatency,
			HopLatencyMS:      time.Since(hopStart).Milliseconds(),
			ReaderUsage:       readerUsage,
			Decision:          decisionLabel(decision),
		}
		run.Hops = append(run.Hops, record)

		a.logger.Debug().
			Str("run_id", run.ID).
			Int("hop", hop).
			Int("new_passages", len(newPassages)).
			Int("accumulated", len(accumulated)).
			Int64("search_latency_ms", record.SearchLatencyMS).
			Int64("reader_latency_ms", record.ReaderLatencyMS).
			Int64("hop_latency_ms", record.HopLatencyMS).
			Int("reader_prompt_tokens", record.ReaderUsage.PromptTokens).
			Int("reader_completion_tokens", record.ReaderUsage.CompletionTokens).
			Float64("reader_cost", record.ReaderUsage.Cost).
			Str("decision", record.Decision).
			Msg("hop complete")

		if decision.Kind == DecisionSynthesize {
			break
		}
		if hop+1 == a.opts.MaxHops {
			// Hop budget exhausted: synthesis is forced regardless of
			// the reader's decision.
			budgetExhausted = true
			break
		}
		pending = decision.FollowUpQueries
	}

	synthStart := time.Now()
	answer, synthUsage, err := a.synthesizer.Synthesize(ctx, question, accumulated, budgetExhausted)
	run.SynthesisLatencyMS = time.Since(synthStart).Milliseconds()
	run.SynthesisUsage = synthUsage
	run.TotalUsage.Add(synthUsage)
	if err != nil {
		return nil, a.fail(run, "synthesizer", err, runStart)
	}

	run.FinalAnswer = answer
	run.Status = instrumentation.StatusCompleted
	run.TotalLatencyMS = time.Since(runStart).Milliseconds()
	a.emit(run)

	return run, nil
}

// retrieveAll fans the hop's queries out concurrently and merges the results
// back in query order once every call has resolved. A single failed query is
// skipped (its text is reported back for the hop record); the hop itself
// fails only when every query failed or the run was cancelled.
func (a *Agent) retrieveAll(ctx context.Context, queries []string) ([]repository.Passage, []string, error) {
	results := make([][]repository.Passage, len(queries))
	failures := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		g.Go(func() error {
			passages, err := a.retriever.Search(gctx, query, a.opts.TopK)
			if err != nil {
				if errors.Is(err, repository.ErrRetrievalFailed) {
					a.logger.Warn().Str("query", query).Err(err).Msg("query skipped")
					failures[i] = err
					return nil
				}
				return err
			}
			results[i] = passages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var merged []repository.Passage
	var failedQueries []string
	for i := range queries {
		if failures[i] != nil {
			failedQueries = append(failedQueries, queries[i])
			continue
		}
		merged = append(merged, results[i]...)
	}

	if len(queries) > 0 && len(failedQueries) == len(queries) {
		return nil, failedQueries, fmt.Errorf("all %d retrieval calls failed for this hop: %w", len(queries), failures[0])
	}
	return merged, failedQueries, nil
}

// fail finalizes the run record with a failure marker, writes it to the
// sinks, and returns the error annotated with the failed stage.
func (a *Agent) fail(run *instrumentation.Run, stage string, cause error, runStart time.Time) error {
	run.Status = instrumentation.StatusFailed
	run.FailedStage = stage
	run.Error = cause.Error()
	run.TotalLatencyMS = time.Since(runStart).Milliseconds()
	a.emit(run)

	a.logger.Error().Str("run_id", run.ID).Str("stage", stage).Err(cause).Msg("run failed")
	return fmt.Errorf("%s stage failed: %w", stage, cause)
}

// emit writes the run record to every sink. Sink errors are logged, never
// propagated: instrumentation must not alter control flow.
func (a *Agent) emit(run *instrumentation.Run) {
	for _, sink := range a.sinks {
		if err := sink.Write(run); err != nil {
			a.logger.Error().Str("run_id", run.ID).Err(err).Msg("run sink write failed")
		}
	}
}

func decisionLabel(d Decision) string {
	if d.Kind == DecisionContinue {
		return fmt.Sprintf("continue(%d)", len(d.FollowUpQueries))
	}
	return string(DecisionSynthesize)
}
