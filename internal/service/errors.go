package service

import (
	"errors"
	"fmt"

	"github.com/fleetops/backend/internal/models"
)

const (
	CodeInvalidDimensions = "INVALID_DIMENSIONS"
	CodeInvalidTierConfig = "INVALID_TIER_CONFIG"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeSlotConflict      = "SLOT_CONFLICT"
	CodeAssignmentFailed  = "ASSIGNMENT_FAILED"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

type InvalidDimensionsError struct {
	WeightKg float64
	VolumeM3 float64
}

func (e InvalidDimensionsError) Error() string {
	return fmt.Sprintf("invalid dimensions: weight_kg=%.3f volume_m3=%.4f (both must be > 0)", e.WeightKg, e.VolumeM3)
}

func (e InvalidDimensionsError) Code() string { return CodeInvalidDimensions }

type InvalidTierConfigError struct {
	Reason string
}

func (e InvalidTierConfigError) Error() string {
	return "invalid tier config: " + e.Reason
}

func (e InvalidTierConfigError) Code() string { return CodeInvalidTierConfig }

// CapacityExceededError reports the first package that could not be placed.
// It is a planning signal, not a bug: the caller decides whether to split the
// batch, swap the vehicle, or reduce the load.
type CapacityExceededError struct {
	FacilityID     string
	PackageID      string
	ShortfallKg    float64
	ShortfallM3    float64
	ShortfallSlots int
}

func (e CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded at facility %s: package %s short by %.1fkg / %.3fm3 / %d slots",
		e.FacilityID, e.PackageID, e.ShortfallKg, e.ShortfallM3, e.ShortfallSlots)
}

func (e CapacityExceededError) Code() string { return CodeCapacityExceeded }

// ErrSlotConflict marks a transient double-booking race on slot insert.
// Callers retry the whole assignment after re-reading occupancy.
var ErrSlotConflict = errors.New("slot conflict")

type AssignmentFailedError struct {
	BatchID  string
	Attempts int
}

func (e AssignmentFailedError) Error() string {
	return fmt.Sprintf("slot assignment for batch %s failed after %d attempts", e.BatchID, e.Attempts)
}

func (e AssignmentFailedError) Code() string { return CodeAssignmentFailed }

func (e AssignmentFailedError) Unwrap() error { return ErrSlotConflict }

type InvalidTransitionError struct {
	From models.BatchStatus
	To   models.BatchStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid batch transition %s -> %s", e.From, e.To)
}

func (e InvalidTransitionError) Code() string { return CodeInvalidTransition }

type InvalidRunTransitionError struct {
	From models.RunStatus
	To   models.RunStatus
}

func (e InvalidRunTransitionError) Error() string {
	return fmt.Sprintf("invalid optimization run transition %s -> %s", e.From, e.To)
}

func (e InvalidRunTransitionError) Code() string { return CodeInvalidTransition }
