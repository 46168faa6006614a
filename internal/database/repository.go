package database

import (
	"context"
	"errors"

	"github.com/hopsearch/hopsearch/internal/database/models"
)

var ErrNotFound = errors.New("record not found")

// RunRepository handles finished-run persistence for later inspection.
type RunRepository interface {
	SaveRun(ctx context.Context, row *models.RunRow) error
	GetRunByID(ctx context.Context, id string) (*models.RunRow, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*models.RunRow, error)
	RunStats(ctx context.Context) (*models.RunStats, error)
}
