package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetops/backend/internal/models"
	"github.com/fleetops/backend/internal/optimizer"
)

type RunStore interface {
	InsertRun(ctx context.Context, run models.OptimizationRun) error
	GetRun(ctx context.Context, runID string) (models.OptimizationRun, error)
	// UpdateRunStatusCAS flips status only while it still equals from.
	UpdateRunStatusCAS(ctx context.Context, runID string, from, to models.RunStatus) (bool, error)
	SetRunResult(ctx context.Context, runID string, batches []models.DraftBatch) error
	SetRunError(ctx context.Context, runID, message string) error
	SetRunBatchIDs(ctx context.Context, runID string, batchIDs []string) error
	InsertBatch(ctx context.Context, batch models.SchedulerBatch) error
}

type OptimizationService struct {
	Store     RunStore
	Optimizer optimizer.Adapter
	Logger    zerolog.Logger
}

// SubmitRun records a new optimization request in pending state.
func (s *OptimizationService) SubmitRun(ctx context.Context, params models.OptimizationParams, actor string) (models.OptimizationRun, error) {
	if params.WarehouseID == "" {
		return models.OptimizationRun{}, fmt.Errorf("submit run: warehouse_id required")
	}
	if len(params.FacilityIDs) == 0 {
		return models.OptimizationRun{}, fmt.Errorf("submit run: at least one facility required")
	}
	if params.CapacityThreshold < 0 || params.CapacityThreshold > 100 {
		return models.OptimizationRun{}, fmt.Errorf("submit run: capacity_threshold must be within [0,100]")
	}

	run := models.OptimizationRun{
		ID:          uuid.NewString(),
		Params:      params,
		Status:      models.RunPending,
		SubmittedBy: actor,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.Store.InsertRun(ctx, run); err != nil {
		return models.OptimizationRun{}, err
	}
	s.Logger.Info().Str("run_id", run.ID).Str("warehouse_id", params.WarehouseID).
		Int("facilities", len(params.FacilityIDs)).Msg("optimization run submitted")
	return run, nil
}

// ClaimRun moves a pending run to running on behalf of a worker. Only one of
// two concurrent claimers wins the CAS.
func (s *OptimizationService) ClaimRun(ctx context.Context, runID string) (models.OptimizationRun, error) {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return models.OptimizationRun{}, err
	}
	if run.Status != models.RunPending {
		return models.OptimizationRun{}, InvalidRunTransitionError{From: run.Status, To: models.RunRunning}
	}
	won, err := s.Store.UpdateRunStatusCAS(ctx, runID, models.RunPending, models.RunRunning)
	if err != nil {
		return models.OptimizationRun{}, err
	}
	if !won {
		return models.OptimizationRun{}, InvalidRunTransitionError{From: models.RunRunning, To: models.RunRunning}
	}
	return s.Store.GetRun(ctx, runID)
}

// CompleteRun records the result batches and finishes the run. The drafts are
// not persisted as scheduler batches here; MaterializeRun does that on
// explicit operator request.
func (s *OptimizationService) CompleteRun(ctx context.Context, runID string, batches []models.DraftBatch) error {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunRunning {
		return InvalidRunTransitionError{From: run.Status, To: models.RunCompleted}
	}
	won, err := s.Store.UpdateRunStatusCAS(ctx, runID, models.RunRunning, models.RunCompleted)
	if err != nil {
		return err
	}
	if !won {
		return InvalidRunTransitionError{From: run.Status, To: models.RunCompleted}
	}
	if err := s.Store.SetRunResult(ctx, runID, batches); err != nil {
		return err
	}
	s.Logger.Info().Str("run_id", runID).Int("result_batches", len(batches)).Msg("optimization run completed")
	return nil
}

// FailRun finishes the run with an error. It is also the cancellation path,
// from running or straight from pending when the run is withdrawn before a
// worker claims it: the core records the outcome, it does not kill in-flight
// work.
func (s *OptimizationService) FailRun(ctx context.Context, runID, message string) error {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunPending && run.Status != models.RunRunning {
		return InvalidRunTransitionError{From: run.Status, To: models.RunFailed}
	}
	won, err := s.Store.UpdateRunStatusCAS(ctx, runID, run.Status, models.RunFailed)
	if err != nil {
		return err
	}
	if !won {
		return InvalidRunTransitionError{From: run.Status, To: models.RunFailed}
	}
	if err := s.Store.SetRunError(ctx, runID, message); err != nil {
		return err
	}
	s.Logger.Warn().Str("run_id", runID).Str("error", message).Msg("optimization run failed")
	return nil
}

// ExecuteRun is the in-process worker path: claim, call the route optimizer
// adapter, record the outcome. Long searches live behind the adapter; this
// core only books the result.
func (s *OptimizationService) ExecuteRun(ctx context.Context, runID string) error {
	run, err := s.ClaimRun(ctx, runID)
	if err != nil {
		return err
	}

	result, err := s.Optimizer.OptimizeRoute(ctx, run.Params)
	if err != nil {
		return s.FailRun(ctx, runID, err.Error())
	}

	drafts := make([]models.DraftBatch, 0, len(result.Batches))
	for _, b := range result.Batches {
		drafts = append(drafts, models.DraftBatch{
			FacilityIDs:      b.FacilityIDs,
			VehicleID:        b.VehicleID,
			TotalDistanceKm:  b.TotalDistanceKm,
			TotalDurationMin: b.TotalDurationMin,
		})
	}
	return s.CompleteRun(ctx, runID, drafts)
}

// MaterializeRun converts a completed run's draft batches into persisted
// scheduler batches in draft status and back-links their ids onto the run.
// Calling it again after the drafts were materialized is rejected so the same
// suggestion set is never persisted twice.
func (s *OptimizationService) MaterializeRun(ctx context.Context, runID, actor string, plannedDate time.Time) ([]models.SchedulerBatch, error) {
	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunCompleted {
		return nil, fmt.Errorf("run %s cannot be materialized in status %s", runID, run.Status)
	}
	if len(run.SchedulerBatchIDs) > 0 {
		return nil, fmt.Errorf("run %s was already materialized", runID)
	}
	if len(run.ResultBatches) == 0 {
		return nil, fmt.Errorf("run %s has no result batches", runID)
	}

	now := time.Now().UTC()
	batches := make([]models.SchedulerBatch, 0, len(run.ResultBatches))
	ids := make([]string, 0, len(run.ResultBatches))
	for _, d := range run.ResultBatches {
		b := models.SchedulerBatch{
			ID:                uuid.NewString(),
			WarehouseID:       run.Params.WarehouseID,
			FacilityIDs:       d.FacilityIDs,
			PlannedDate:       plannedDate,
			VehicleID:         d.VehicleID,
			TotalDistanceKm:   d.TotalDistanceKm,
			Status:            models.BatchDraft,
			OptimizationRunID: &run.ID,
			CreatedBy:         actor,
			UpdatedBy:         actor,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.Store.InsertBatch(ctx, b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
		ids = append(ids, b.ID)
	}
	if err := s.Store.SetRunBatchIDs(ctx, runID, ids); err != nil {
		return nil, err
	}
	s.Logger.Info().Str("run_id", runID).Int("batches", len(ids)).Str("actor", actor).Msg("optimization run materialized")
	return batches, nil
}
