package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetops/backend/internal/models"
	"github.com/fleetops/backend/internal/service"
)

// ListActiveAssignments returns every OCCUPIED slot row on the vehicle,
// across all batches.
func (s *Store) ListActiveAssignments(ctx context.Context, vehicleID string) ([]models.SlotAssignment, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, vehicle_id, batch_id, tier_name, slot_number, facility_id, sequence_order, package_id, load_kg, load_volume_m3, status, created_at
		 FROM slot_assignments
		 WHERE vehicle_id = $1 AND status = $2
		 ORDER BY tier_name, slot_number`, vehicleID, models.SlotStatusOccupied)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SlotAssignment
	for rows.Next() {
		var a models.SlotAssignment
		if err := rows.Scan(&a.ID, &a.VehicleID, &a.BatchID, &a.TierName, &a.SlotNumber, &a.FacilityID, &a.SequenceOrder, &a.PackageID, &a.LoadKg, &a.LoadVolumeM3, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListBatchAssignments(ctx context.Context, batchID string) ([]models.SlotAssignment, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, vehicle_id, batch_id, tier_name, slot_number, facility_id, sequence_order, package_id, load_kg, load_volume_m3, status, created_at
		 FROM slot_assignments
		 WHERE batch_id = $1 AND status = $2
		 ORDER BY sequence_order, tier_name, slot_number`, batchID, models.SlotStatusOccupied)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SlotAssignment
	for rows.Next() {
		var a models.SlotAssignment
		if err := rows.Scan(&a.ID, &a.VehicleID, &a.BatchID, &a.TierName, &a.SlotNumber, &a.FacilityID, &a.SequenceOrder, &a.PackageID, &a.LoadKg, &a.LoadVolumeM3, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAssignments writes the whole row set in one transaction. The partial
// unique index on OCCUPIED rows rejects a concurrent claim of the same
// physical slot; that surfaces as service.ErrSlotConflict so the caller can
// re-read occupancy and retry the whole plan.
func (s *Store) InsertAssignments(ctx context.Context, batchID string, assignments []models.SlotAssignment) error {
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, a := range assignments {
			if _, err := tx.Exec(ctx,
				`INSERT INTO slot_assignments
				 (id, vehicle_id, batch_id, tier_name, slot_number, facility_id, sequence_order, package_id, load_kg, load_volume_m3, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				a.ID, a.VehicleID, a.BatchID, a.TierName, a.SlotNumber, a.FacilityID, a.SequenceOrder, a.PackageID, a.LoadKg, a.LoadVolumeM3, a.Status, a.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return service.ErrSlotConflict
	}
	return err
}

func (s *Store) ReleaseAssignments(ctx context.Context, batchID string) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE slot_assignments SET status = $1 WHERE batch_id = $2 AND status = $3`,
		models.SlotStatusReleased, batchID, models.SlotStatusOccupied)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SetBatchUtilization(ctx context.Context, batchID string, pct float64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE scheduler_batches SET capacity_utilization_pct = $1, updated_at = now() WHERE id = $2`,
		pct, batchID)
	return err
}
