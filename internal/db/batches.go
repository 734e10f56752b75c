package db

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetops/backend/internal/models"
)

const batchColumns = `id, warehouse_id, facility_ids, planned_date, time_window_start, time_window_end,
	driver_id, vehicle_id, total_distance_km, capacity_utilization_pct, status,
	published_batch_id, optimization_run_id, created_by, updated_by, created_at, updated_at`

func (s *Store) scanBatch(row rowScanner) (models.SchedulerBatch, error) {
	var b models.SchedulerBatch
	var status string
	if err := row.Scan(&b.ID, &b.WarehouseID, &b.FacilityIDs, &b.PlannedDate, &b.TimeWindowStart, &b.TimeWindowEnd,
		&b.DriverID, &b.VehicleID, &b.TotalDistanceKm, &b.CapacityUtilizationPct, &status,
		&b.PublishedBatchID, &b.OptimizationRunID, &b.CreatedBy, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return models.SchedulerBatch{}, err
	}
	b.Status = models.BatchStatus(status)
	return b, nil
}

func (s *Store) InsertBatch(ctx context.Context, b models.SchedulerBatch) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO scheduler_batches (`+batchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		b.ID, b.WarehouseID, b.FacilityIDs, b.PlannedDate, b.TimeWindowStart, b.TimeWindowEnd,
		b.DriverID, b.VehicleID, b.TotalDistanceKm, b.CapacityUtilizationPct, string(b.Status),
		b.PublishedBatchID, b.OptimizationRunID, b.CreatedBy, b.UpdatedBy, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (models.SchedulerBatch, error) {
	return s.scanBatch(s.Pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM scheduler_batches WHERE id = $1`, batchID))
}

func (s *Store) ListBatches(ctx context.Context, status string, limit, offset int) ([]models.SchedulerBatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + batchColumns + ` FROM scheduler_batches`
	var args []any
	if status != "" {
		args = append(args, status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit, offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SchedulerBatch
	for rows.Next() {
		b, err := s.scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBatchStatusCAS flips the status only while the row still holds from.
// Zero rows affected means another caller won the edge first.
func (s *Store) UpdateBatchStatusCAS(ctx context.Context, batchID string, from, to models.BatchStatus, updatedBy string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE scheduler_batches SET status = $1, updated_by = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(to), updatedBy, time.Now().UTC(), batchID, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelBatch flips the batch to cancelled and releases its slot rows in one
// transaction; winning the status edge and freeing the slots happen together
// or not at all. Zero rows on the status update means a concurrent caller
// moved the batch first, and nothing is released.
func (s *Store) CancelBatch(ctx context.Context, batchID string, from models.BatchStatus, updatedBy string) (bool, int64, error) {
	var won bool
	var released int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE scheduler_batches SET status = $1, updated_by = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
			string(models.BatchCancelled), updatedBy, time.Now().UTC(), batchID, string(from))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		won = true
		rel, err := tx.Exec(ctx,
			`UPDATE slot_assignments SET status = $1 WHERE batch_id = $2 AND status = $3`,
			models.SlotStatusReleased, batchID, models.SlotStatusOccupied)
		if err != nil {
			return err
		}
		released = rel.RowsAffected()
		return nil
	})
	return won, released, err
}

func (s *Store) SetPublishedBatchID(ctx context.Context, batchID, publishedBatchID string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE scheduler_batches SET published_batch_id = $1, updated_at = now() WHERE id = $2`,
		publishedBatchID, batchID)
	return err
}

func (s *Store) SetBatchAssignment(ctx context.Context, batchID string, driverID, vehicleID *string, updatedBy string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE scheduler_batches SET driver_id = $1, vehicle_id = $2, updated_by = $3, updated_at = now() WHERE id = $4`,
		driverID, vehicleID, updatedBy, batchID)
	return err
}

type stopPackageRow struct {
	facilityID string
	packages   []byte
}

// ListStopPackages resolves the batch's facilities, preserving route order,
// to the packages of their final packaging versions. One facility may carry
// several requisitions; all of their packages load at that stop. The left
// join keeps requisitions without a final version visible, so a facility
// with even one unfinalized requisition is reported missing instead of
// loading a truncated stop.
func (s *Store) ListStopPackages(ctx context.Context, batch models.SchedulerBatch) ([]models.Stop, []string, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT r.facility_id, rp.packages
		 FROM requisitions r
		 LEFT JOIN requisition_packaging rp ON rp.requisition_id = r.id AND rp.is_final
		 WHERE r.facility_id = ANY($1)`, batch.FacilityIDs)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var scanned []stopPackageRow
	for rows.Next() {
		var row stopPackageRow
		if err := rows.Scan(&row.facilityID, &row.packages); err != nil {
			return nil, nil, err
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return groupStopPackages(batch.FacilityIDs, scanned)
}

// groupStopPackages builds route-ordered stops from per-requisition rows. A
// facility is missing when it has no requisitions at all or when any of its
// requisitions carries no final packaging (nil packages from the left join).
func groupStopPackages(facilityIDs []string, rows []stopPackageRow) ([]models.Stop, []string, error) {
	byFacility := map[string][]models.Package{}
	incomplete := map[string]bool{}
	for _, row := range rows {
		if len(row.packages) == 0 {
			incomplete[row.facilityID] = true
			continue
		}
		var packages []models.Package
		if err := json.Unmarshal(row.packages, &packages); err != nil {
			return nil, nil, err
		}
		byFacility[row.facilityID] = append(byFacility[row.facilityID], packages...)
	}

	var stops []models.Stop
	var missing []string
	for _, facilityID := range facilityIDs {
		packages, ok := byFacility[facilityID]
		if !ok || incomplete[facilityID] {
			missing = append(missing, facilityID)
			continue
		}
		stops = append(stops, models.Stop{FacilityID: facilityID, Packages: packages})
	}
	return stops, missing, nil
}
