package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/hopsearch/hopsearch/internal/database"
	"github.com/hopsearch/hopsearch/internal/domain/repository"
	"github.com/hopsearch/hopsearch/internal/instrumentation"
)

func newTestStore(t *testing.T) *BunStore {
	t.Helper()

	conn, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory sqlite is per-connection; keep the pool at one.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	store, err := NewBunStore(conn, sqlitedialect.New())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func sampleRun(id, status string) *instrumentation.Run {
	return &instrumentation.Run{
		ID:        id,
		Timestamp: "2026-08-23T10:00:00Z",
		Question:  "What is the capital of France?",
		Hops: []instrumentation.HopRecord{
			{HopIndex: 0, Queries: []string{"capital of France"}, PassagesRetrieved: 3, Decision: "synthesize"},
		},
		FinalAnswer:    "Paris",
		TotalLatencyMS: 1200,
		TotalUsage:     repository.Usage{PromptTokens: 100, CompletionTokens: 40, Cost: 0.002},
		Status:         status,
	}
}

func TestWriteAndGetRun(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write(sampleRun("run-1", instrumentation.StatusCompleted)); err != nil {
		t.Fatalf("write run: %v", err)
	}

	row, err := store.GetRunByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if row.Question != "What is the capital of France?" || row.FinalAnswer != "Paris" {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.HopCount != 1 {
		t.Errorf("unexpected hop count: %d", row.HopCount)
	}
	if !strings.Contains(row.HopsJSON, `"decision":"synthesize"`) {
		t.Errorf("hop detail not preserved: %s", row.HopsJSON)
	}
	if row.Cost != 0.002 {
		t.Errorf("cost not preserved: %v", row.Cost)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRunByID(context.Background(), "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStatsAggregates(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write(sampleRun("run-1", instrumentation.StatusCompleted)); err != nil {
		t.Fatalf("write run: %v", err)
	}
	failed := sampleRun("run-2", instrumentation.StatusFailed)
	failed.FinalAnswer = ""
	failed.FailedStage = "retriever"
	if err := store.Write(failed); err != nil {
		t.Fatalf("write run: %v", err)
	}

	stats, err := store.RunStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRuns != 2 || stats.FailedRuns != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.TotalTokens != 280 {
		t.Errorf("unexpected token total: %d", stats.TotalTokens)
	}
	if stats.TotalCost != 0.004 {
		t.Errorf("unexpected cost total: %v", stats.TotalCost)
	}
}

func TestListRecentRuns(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Write(sampleRun(id, instrumentation.StatusCompleted)); err != nil {
			t.Fatalf("write run: %v", err)
		}
	}

	rows, err := store.ListRecentRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
}
