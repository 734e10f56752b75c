package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetops/backend/internal/models"
)

func (s *Store) InsertRun(ctx context.Context, run models.OptimizationRun) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO optimization_runs (id, params, status, submitted_by, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, paramsJSON, string(run.Status), run.SubmittedBy, run.SubmittedAt)
	return err
}

func (s *Store) GetRun(ctx context.Context, runID string) (models.OptimizationRun, error) {
	var r models.OptimizationRun
	var status string
	var paramsJSON []byte
	var resultJSON []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT id, params, status, result_batches, scheduler_batch_ids, error_message, submitted_by, submitted_at, started_at, finished_at
		 FROM optimization_runs WHERE id = $1`, runID).
		Scan(&r.ID, &paramsJSON, &status, &resultJSON, &r.SchedulerBatchIDs, &r.ErrorMessage, &r.SubmittedBy, &r.SubmittedAt, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return models.OptimizationRun{}, err
	}
	r.Status = models.RunStatus(status)
	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		return models.OptimizationRun{}, err
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &r.ResultBatches); err != nil {
			return models.OptimizationRun{}, err
		}
	}
	return r, nil
}

// UpdateRunStatusCAS flips the status only while the row still holds from,
// stamping started_at/finished_at for the running and terminal edges.
func (s *Store) UpdateRunStatusCAS(ctx context.Context, runID string, from, to models.RunStatus) (bool, error) {
	now := time.Now().UTC()
	var query string
	args := []any{string(to), runID, string(from)}
	switch to {
	case models.RunRunning:
		query = `UPDATE optimization_runs SET status = $1, started_at = $4 WHERE id = $2 AND status = $3`
		args = append(args, now)
	case models.RunCompleted, models.RunFailed:
		query = `UPDATE optimization_runs SET status = $1, finished_at = $4 WHERE id = $2 AND status = $3`
		args = append(args, now)
	default:
		query = `UPDATE optimization_runs SET status = $1 WHERE id = $2 AND status = $3`
	}
	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetRunResult(ctx context.Context, runID string, batches []models.DraftBatch) error {
	resultJSON, err := json.Marshal(batches)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx,
		`UPDATE optimization_runs SET result_batches = $1 WHERE id = $2`, resultJSON, runID)
	return err
}

func (s *Store) SetRunError(ctx context.Context, runID, message string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE optimization_runs SET error_message = $1 WHERE id = $2`, message, runID)
	return err
}

func (s *Store) SetRunBatchIDs(ctx context.Context, runID string, batchIDs []string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE optimization_runs SET scheduler_batch_ids = $1 WHERE id = $2`, batchIDs, runID)
	return err
}
