package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetops/backend/internal/models"
)

// SlotKey addresses one physical slot within a vehicle.
type SlotKey struct {
	TierName   string
	SlotNumber int
}

// DefaultSlotRetryMax bounds the abort-and-retry loop on slot conflicts.
const DefaultSlotRetryMax = 3

type tierState struct {
	tier   models.VehicleTier
	taken  map[int]bool
	loadKg float64
	loadM3 float64
}

func (ts *tierState) freeSlots() int {
	return ts.tier.SlotCount - len(ts.taken)
}

func (ts *tierState) fits(p models.Package) bool {
	if ts.freeSlots() < 1 {
		return false
	}
	if ts.tier.MaxWeightKg != nil && ts.loadKg+p.WeightKg > *ts.tier.MaxWeightKg {
		return false
	}
	if ts.tier.MaxVolumeM3 != nil && ts.loadM3+p.VolumeM3 > *ts.tier.MaxVolumeM3 {
		return false
	}
	return true
}

func (ts *tierState) lowestFreeSlot() int {
	for n := 1; n <= ts.tier.SlotCount; n++ {
		if !ts.taken[n] {
			return n
		}
	}
	return 0
}

// PlanSlots computes a slot-by-slot assignment for the batch without touching
// storage. Stops are honored in the given route order and never reordered.
// Each package lands in the first fitting tier by tier_order, taking the
// lowest free slot number, so the same input always yields the same
// assignment. Existing assignments for other batches on the vehicle count
// against tier ceilings and slot occupancy. If any package cannot be placed
// the whole plan fails with CapacityExceeded.
func PlanSlots(batchID, vehicleID string, stops []models.Stop, tiers []models.VehicleTier, existing []models.SlotAssignment) ([]models.SlotAssignment, error) {
	if err := ValidateTierConfig(tiers); err != nil {
		return nil, err
	}

	states := make([]*tierState, len(tiers))
	byName := map[string]*tierState{}
	ordered := make([]models.VehicleTier, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TierOrder < ordered[j].TierOrder })
	for i, t := range ordered {
		states[i] = &tierState{tier: t, taken: map[int]bool{}}
		byName[t.TierName] = states[i]
	}

	for _, a := range existing {
		if a.BatchID == batchID || a.Status != models.SlotStatusOccupied {
			continue
		}
		ts, ok := byName[a.TierName]
		if !ok {
			return nil, fmt.Errorf("existing assignment %s references unknown tier %q", a.ID, a.TierName)
		}
		ts.taken[a.SlotNumber] = true
		ts.loadKg += a.LoadKg
		ts.loadM3 += a.LoadVolumeM3
	}

	now := time.Now().UTC()
	var out []models.SlotAssignment
	for seq, stop := range stops {
		for _, pkg := range stop.Packages {
			// First fit by tier_order. When two tiers are interchangeable
			// for the package (same ceilings, same current load) the one
			// with more free slots wins, then the lower tier_order.
			var chosen *tierState
			for _, ts := range states {
				if !ts.fits(pkg) {
					continue
				}
				if chosen == nil {
					chosen = ts
					continue
				}
				if interchangeable(chosen, ts) && ts.freeSlots() > chosen.freeSlots() {
					chosen = ts
				}
			}
			if chosen == nil {
				return nil, shortfall(stop.FacilityID, pkg, states)
			}

			slot := chosen.lowestFreeSlot()
			chosen.taken[slot] = true
			chosen.loadKg += pkg.WeightKg
			chosen.loadM3 += pkg.VolumeM3
			out = append(out, models.SlotAssignment{
				ID:            uuid.NewString(),
				VehicleID:     vehicleID,
				BatchID:       batchID,
				TierName:      chosen.tier.TierName,
				SlotNumber:    slot,
				FacilityID:    stop.FacilityID,
				SequenceOrder: seq + 1,
				PackageID:     pkg.ID,
				LoadKg:        pkg.WeightKg,
				LoadVolumeM3:  pkg.VolumeM3,
				Status:        models.SlotStatusOccupied,
				CreatedAt:     now,
			})
		}
	}
	return out, nil
}

func interchangeable(a, b *tierState) bool {
	return ceilingEqual(a.tier.MaxWeightKg, b.tier.MaxWeightKg) && a.loadKg == b.loadKg &&
		ceilingEqual(a.tier.MaxVolumeM3, b.tier.MaxVolumeM3) && a.loadM3 == b.loadM3
}

func ceilingEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// shortfall reports how far the unplaceable package overshoots the best
// remaining headroom. Only tiers that still have a free slot count: a full
// tier's headroom is unreachable, and reporting it would mask the real
// overshoot against the tiers the package could actually enter.
func shortfall(facilityID string, pkg models.Package, states []*tierState) CapacityExceededError {
	e := CapacityExceededError{FacilityID: facilityID, PackageID: pkg.ID}

	freeAnywhere := false
	bestKg, bestM3 := 0.0, 0.0
	for _, ts := range states {
		if ts.freeSlots() < 1 {
			continue
		}
		freeAnywhere = true
		if ts.tier.MaxWeightKg != nil {
			if h := *ts.tier.MaxWeightKg - ts.loadKg; h > bestKg {
				bestKg = h
			}
		} else {
			bestKg = pkg.WeightKg
		}
		if ts.tier.MaxVolumeM3 != nil {
			if h := *ts.tier.MaxVolumeM3 - ts.loadM3; h > bestM3 {
				bestM3 = h
			}
		} else {
			bestM3 = pkg.VolumeM3
		}
	}
	if !freeAnywhere {
		e.ShortfallSlots = 1
		return e
	}
	if pkg.WeightKg > bestKg {
		e.ShortfallKg = pkg.WeightKg - bestKg
	}
	if pkg.VolumeM3 > bestM3 {
		e.ShortfallM3 = pkg.VolumeM3 - bestM3
	}
	return e
}

// ComputeUtilization aggregates weight and volume utilization across occupied
// tiers and returns max(weight_pct, volume_pct) for the vehicle.
func ComputeUtilization(tiers []models.VehicleTier, assignments []models.SlotAssignment) float64 {
	loadKg := map[string]float64{}
	loadM3 := map[string]float64{}
	for _, a := range assignments {
		if a.Status != models.SlotStatusOccupied {
			continue
		}
		loadKg[a.TierName] += a.LoadKg
		loadM3[a.TierName] += a.LoadVolumeM3
	}

	var usedKg, capKg, usedM3, capM3 float64
	for _, t := range tiers {
		if loadKg[t.TierName] == 0 && loadM3[t.TierName] == 0 {
			continue
		}
		if t.MaxWeightKg != nil {
			usedKg += loadKg[t.TierName]
			capKg += *t.MaxWeightKg
		}
		if t.MaxVolumeM3 != nil {
			usedM3 += loadM3[t.TierName]
			capM3 += *t.MaxVolumeM3
		}
	}

	weightPct, volumePct := 0.0, 0.0
	if capKg > 0 {
		weightPct = usedKg / capKg * 100
	}
	if capM3 > 0 {
		volumePct = usedM3 / capM3 * 100
	}
	if volumePct > weightPct {
		return volumePct
	}
	return weightPct
}

type SlotStore interface {
	GetVehicle(ctx context.Context, vehicleID string) (models.Vehicle, error)
	// ListActiveAssignments returns OCCUPIED rows for the vehicle across all
	// batches.
	ListActiveAssignments(ctx context.Context, vehicleID string) ([]models.SlotAssignment, error)
	// InsertAssignments writes the full row set in one transaction and maps a
	// unique-key violation to ErrSlotConflict.
	InsertAssignments(ctx context.Context, batchID string, rows []models.SlotAssignment) error
	ReleaseAssignments(ctx context.Context, batchID string) (int64, error)
	SetBatchUtilization(ctx context.Context, batchID string, pct float64) error
}

type SlotService struct {
	Store    SlotStore
	RetryMax int
	Logger   zerolog.Logger
}

func (s *SlotService) retryMax() int {
	if s.RetryMax > 0 {
		return s.RetryMax
	}
	return DefaultSlotRetryMax
}

// AssignSlots plans and persists the batch's slot assignments as one atomic
// unit. Previous assignments for the batch are released first (full
// re-assignment on edit). A concurrent assignment against the same vehicle
// surfaces as a slot conflict; the whole attempt is retried from a fresh
// occupancy read, bounded by RetryMax.
func (s *SlotService) AssignSlots(ctx context.Context, batchID, vehicleID string, stops []models.Stop) ([]models.SlotAssignment, error) {
	vehicle, err := s.Store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if _, err := s.Store.ReleaseAssignments(ctx, batchID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.retryMax(); attempt++ {
		existing, err := s.Store.ListActiveAssignments(ctx, vehicleID)
		if err != nil {
			return nil, err
		}

		rows, err := PlanSlots(batchID, vehicleID, stops, vehicle.Tiers, existing)
		if err != nil {
			return nil, err
		}

		if err := s.Store.InsertAssignments(ctx, batchID, rows); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				s.Logger.Warn().
					Str("batch_id", batchID).
					Str("vehicle_id", vehicleID).
					Int("attempt", attempt).
					Msg("slot conflict, retrying assignment")
				continue
			}
			return nil, err
		}

		pct := ComputeUtilization(vehicle.Tiers, append(existing, rows...))
		if err := s.Store.SetBatchUtilization(ctx, batchID, pct); err != nil {
			return nil, err
		}
		s.Logger.Info().
			Str("batch_id", batchID).
			Str("vehicle_id", vehicleID).
			Int("slots", len(rows)).
			Float64("utilization_pct", pct).
			Msg("slots assigned")
		return rows, nil
	}
	return nil, AssignmentFailedError{BatchID: batchID, Attempts: s.retryMax()}
}

// IsSlotAvailable reports whether the physical slot is free on the vehicle,
// ignoring rows that belong to excludingBatchID.
func (s *SlotService) IsSlotAvailable(ctx context.Context, vehicleID string, key SlotKey, excludingBatchID string) (bool, error) {
	existing, err := s.Store.ListActiveAssignments(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	for _, a := range existing {
		if a.BatchID == excludingBatchID {
			continue
		}
		if a.TierName == key.TierName && a.SlotNumber == key.SlotNumber {
			return false, nil
		}
	}
	return true, nil
}
