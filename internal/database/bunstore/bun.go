package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/hopsearch/hopsearch/internal/database"
	"github.com/hopsearch/hopsearch/internal/database/models"
	"github.com/hopsearch/hopsearch/internal/instrumentation"
)

type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *sql.DB, dialect schema.Dialect) (*BunStore, error) {
	bunDB := bun.NewDB(db, dialect)

	store := &BunStore{db: bunDB}

	// Create tables if they don't exist
	ctx := context.Background()
	if _, err := bunDB.NewCreateTable().Model((*models.RunRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	return store, nil
}

// RunRepository Implementation
func (s *BunStore) SaveRun(ctx context.Context, row *models.RunRow) error {
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return err
	}
	return nil
}

func (s *BunStore) GetRunByID(ctx context.Context, id string) (*models.RunRow, error) {
	row := new(models.RunRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return row, nil
}

func (s *BunStore) ListRecentRuns(ctx context.Context, limit int) ([]*models.RunRow, error) {
	var rows []*models.RunRow
	if err := s.db.NewSelect().Model(&rows).Order("created_at DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BunStore) RunStats(ctx context.Context) (*models.RunStats, error) {
	stats := new(models.RunStats)
	err := s.db.NewSelect().Model((*models.RunRow)(nil)).
		ColumnExpr("count(*) AS total_runs").
		ColumnExpr("coalesce(sum(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed_runs", instrumentation.StatusFailed).
		ColumnExpr("coalesce(avg(hop_count), 0) AS avg_hops").
		ColumnExpr("coalesce(avg(total_latency_ms), 0) AS avg_latency_ms").
		ColumnExpr("coalesce(sum(prompt_tokens + completion_tokens), 0) AS total_tokens").
		ColumnExpr("coalesce(sum(cost), 0) AS total_cost").
		Scan(ctx, stats)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Write stores a finished run record, satisfying the agent's sink interface.
func (s *BunStore) Write(run *instrumentation.Run) error {
	row, err := rowFromRun(run)
	if err != nil {
		return err
	}
	return s.SaveRun(context.Background(), row)
}

func rowFromRun(run *instrumentation.Run) (*models.RunRow, error) {
	hops, err := json.Marshal(run.Hops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hop records: %w", err)
	}
	return &models.RunRow{
		ID:               run.ID,
		Timestamp:        run.Timestamp,
		Question:         run.Question,
		FinalAnswer:      run.FinalAnswer,
		Status:           run.Status,
		FailedStage:      run.FailedStage,
		ErrorMessage:     run.Error,
		HopCount:         len(run.Hops),
		HopsJSON:         string(hops),
		TotalLatencyMS:   run.TotalLatencyMS,
		PromptTokens:     run.TotalUsage.PromptTokens,
		CompletionTokens: run.TotalUsage.CompletionTokens,
		Cost:             run.TotalUsage.Cost,
	}, nil
}
