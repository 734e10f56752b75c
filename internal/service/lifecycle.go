package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fleetops/backend/internal/execution"
	"github.com/fleetops/backend/internal/models"
)

// batchTransitions is the legal edge set of the batch state machine. A
// published batch is terminal here; revoking it goes through the external
// execution system, not this core.
var batchTransitions = map[models.BatchStatus][]models.BatchStatus{
	models.BatchDraft:     {models.BatchReady, models.BatchCancelled},
	models.BatchReady:     {models.BatchScheduled, models.BatchCancelled},
	models.BatchScheduled: {models.BatchPublished, models.BatchCancelled},
	models.BatchPublished: {},
	models.BatchCancelled: {},
}

// CanTransition reports whether the edge exists. Re-entering the current
// state is always allowed (idempotent no-op).
func CanTransition(from, to models.BatchStatus) bool {
	if from == to {
		return true
	}
	for _, t := range batchTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

type BatchStore interface {
	GetBatch(ctx context.Context, batchID string) (models.SchedulerBatch, error)
	// UpdateBatchStatusCAS flips status only while it still equals from and
	// reports whether the row was won.
	UpdateBatchStatusCAS(ctx context.Context, batchID string, from, to models.BatchStatus, updatedBy string) (bool, error)
	SetPublishedBatchID(ctx context.Context, batchID, publishedBatchID string) error
	// CancelBatch flips status to cancelled and releases the batch's slot
	// rows atomically, reporting whether the edge was won and how many slots
	// were freed.
	CancelBatch(ctx context.Context, batchID string, from models.BatchStatus, updatedBy string) (bool, int64, error)
	// ListStopPackages resolves the batch's facilities, in route order, to the
	// packages of their final packaging versions. Facilities without a final
	// version come back in missing.
	ListStopPackages(ctx context.Context, batch models.SchedulerBatch) (stops []models.Stop, missing []string, err error)
}

type LifecycleService struct {
	Store     BatchStore
	Slots     *SlotService
	Publisher execution.Publisher
	Logger    zerolog.Logger
}

// Transition moves the batch toward target, enforcing the guard table. Guard
// work (packaging checks, slot assignment, external publish) runs before the
// compare-and-swap on status, so two concurrent callers cannot both win the
// same edge.
func (s *LifecycleService) Transition(ctx context.Context, batchID string, target models.BatchStatus, actor string) (models.SchedulerBatch, error) {
	batch, err := s.Store.GetBatch(ctx, batchID)
	if err != nil {
		return models.SchedulerBatch{}, err
	}
	if batch.Status == target {
		return batch, nil
	}
	if !CanTransition(batch.Status, target) {
		return models.SchedulerBatch{}, InvalidTransitionError{From: batch.Status, To: target}
	}

	switch target {
	case models.BatchReady:
		if err := s.guardReady(ctx, batch); err != nil {
			return models.SchedulerBatch{}, err
		}
	case models.BatchScheduled:
		if batch.DriverID == nil || batch.VehicleID == nil {
			return models.SchedulerBatch{}, fmt.Errorf("batch %s cannot be scheduled: driver and vehicle must both be set", batchID)
		}
	case models.BatchPublished:
		return s.publish(ctx, batch, actor)
	}

	if target == models.BatchCancelled {
		won, released, err := s.Store.CancelBatch(ctx, batchID, batch.Status, actor)
		if err != nil {
			return models.SchedulerBatch{}, err
		}
		if !won {
			return models.SchedulerBatch{}, fmt.Errorf("batch %s was modified concurrently, re-read and retry", batchID)
		}
		s.Logger.Info().
			Str("batch_id", batchID).
			Int64("released_slots", released).
			Msg("batch cancelled, slots released")
	} else {
		won, err := s.Store.UpdateBatchStatusCAS(ctx, batchID, batch.Status, target, actor)
		if err != nil {
			return models.SchedulerBatch{}, err
		}
		if !won {
			return models.SchedulerBatch{}, fmt.Errorf("batch %s was modified concurrently, re-read and retry", batchID)
		}
	}

	s.Logger.Info().
		Str("batch_id", batchID).
		Str("from", string(batch.Status)).
		Str("to", string(target)).
		Str("actor", actor).
		Msg("batch transition")
	return s.Store.GetBatch(ctx, batchID)
}

// guardReady requires every facility's packaging to be final and a successful
// full slot assignment. PlanSlots enforces tier ceilings, so success implies
// utilization within 100% on every tier.
func (s *LifecycleService) guardReady(ctx context.Context, batch models.SchedulerBatch) error {
	if batch.VehicleID == nil {
		return fmt.Errorf("batch %s cannot become ready: vehicle not set", batch.ID)
	}
	stops, missing, err := s.Store.ListStopPackages(ctx, batch)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("batch %s cannot become ready: packaging not finalized for facilities %s",
			batch.ID, strings.Join(missing, ", "))
	}
	_, err = s.Slots.AssignSlots(ctx, batch.ID, *batch.VehicleID, stops)
	return err
}

// publish hands the batch to the execution system. The status edge is claimed
// first so a concurrent caller cannot publish the same batch twice; if the
// external call then fails the claim is reverted.
func (s *LifecycleService) publish(ctx context.Context, batch models.SchedulerBatch, actor string) (models.SchedulerBatch, error) {
	won, err := s.Store.UpdateBatchStatusCAS(ctx, batch.ID, models.BatchScheduled, models.BatchPublished, actor)
	if err != nil {
		return models.SchedulerBatch{}, err
	}
	if !won {
		return models.SchedulerBatch{}, fmt.Errorf("batch %s was modified concurrently, re-read and retry", batch.ID)
	}

	publishedID, err := s.Publisher.PublishBatch(ctx, batch)
	if err != nil {
		if _, revertErr := s.Store.UpdateBatchStatusCAS(ctx, batch.ID, models.BatchPublished, models.BatchScheduled, actor); revertErr != nil {
			s.Logger.Error().Err(revertErr).Str("batch_id", batch.ID).Msg("failed to revert publish claim")
		}
		return models.SchedulerBatch{}, fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}

	if err := s.Store.SetPublishedBatchID(ctx, batch.ID, publishedID); err != nil {
		return models.SchedulerBatch{}, err
	}
	s.Logger.Info().
		Str("batch_id", batch.ID).
		Str("published_batch_id", publishedID).
		Str("actor", actor).
		Msg("batch published")
	return s.Store.GetBatch(ctx, batch.ID)
}
