package service

import (
	"context"
	"encoding/json"
)

// Service defines the interface for progress backend operations.
// All progress API calls go through this interface; the synchronizer and
// commands never build HTTP requests themselves.
type Service interface {
	// ListProgress returns the progress records of a weekly plan.
	// Returns ErrMissingRecords when the server reports none (404 or an
	// explicit flag).
	ListProgress(ctx context.Context, planID string) ([]Record, error)

	// BatchInitialize creates records for every task lacking one and
	// returns the records for all tasks the server could handle. The server
	// treats the call as an idempotent upsert.
	BatchInitialize(ctx context.Context, planID string, weekNumber int, tasks []Task, initial Status) ([]Record, error)

	// CreateRecord creates a single progress record. progressData may be nil.
	CreateRecord(ctx context.Context, planID string, task Task, initial Status, progressData json.RawMessage) (Record, error)

	// UpdateRecord patches one record by id and returns the server's copy.
	UpdateRecord(ctx context.Context, recordID string, update Update) (Record, error)
}
