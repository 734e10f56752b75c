package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) InsertFacilities(ctx context.Context, facilities []models.Facility) (int64, error) {
	rows := make([][]any, 0, len(facilities))
	for _, f := range facilities {
		rows = append(rows, []any{f.ID, f.Name, f.City, f.Lat, f.Lon})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"facilities"},
		[]string{"id", "name", "city", "lat", "lon"}, pgx.CopyFromRows(rows))
}

func (s *Store) ListFacilities(ctx context.Context, ids []string) ([]models.Facility, error) {
	query := `SELECT id, name, city, lat, lon FROM facilities`
	var args []any
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Facility
	for rows.Next() {
		var f models.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.City, &f.Lat, &f.Lon); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) InsertRequisition(ctx context.Context, id, facilityID, warehouseID string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO requisitions (id, facility_id, warehouse_id) VALUES ($1, $2, $3)`,
		id, facilityID, warehouseID)
	return err
}

func (s *Store) InsertRequisitionItems(ctx context.Context, items []models.RequisitionItem) (int64, error) {
	rows := make([][]any, 0, len(items))
	for _, i := range items {
		rows = append(rows, []any{i.ID, i.RequisitionID, i.Description, i.Quantity, i.UnitWeightKg, i.UnitVolumeM3})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"requisition_items"},
		[]string{"id", "requisition_id", "description", "quantity", "unit_weight_kg", "unit_volume_m3"},
		pgx.CopyFromRows(rows))
}

func (s *Store) GetRequisitionItems(ctx context.Context, requisitionID string) ([]models.RequisitionItem, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, requisition_id, description, quantity, unit_weight_kg, unit_volume_m3
		 FROM requisition_items WHERE requisition_id = $1 ORDER BY id`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RequisitionItem
	for rows.Next() {
		var i models.RequisitionItem
		if err := rows.Scan(&i.ID, &i.RequisitionID, &i.Description, &i.Quantity, &i.UnitWeightKg, &i.UnitVolumeM3); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) ListPackagingRules(ctx context.Context) ([]models.PackagingRule, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT packaging_type, max_weight_kg, max_volume_m3, slot_cost, catch_all
		 FROM packaging_rules ORDER BY sort_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PackagingRule
	for rows.Next() {
		var r models.PackagingRule
		if err := rows.Scan(&r.PackagingType, &r.MaxWeightKg, &r.MaxVolumeM3, &r.SlotCost, &r.CatchAll); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetFinalPackaging(ctx context.Context, requisitionID string) (*models.RequisitionPackaging, error) {
	p, err := s.scanPackaging(s.Pool.QueryRow(ctx,
		`SELECT id, requisition_id, version, packages, total_slot_demand, rounded_slot_demand, is_final, created_by, created_at
		 FROM requisition_packaging WHERE requisition_id = $1 AND is_final`, requisitionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPackagingHistory(ctx context.Context, requisitionID string) ([]models.RequisitionPackaging, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, requisition_id, version, packages, total_slot_demand, rounded_slot_demand, is_final, created_by, created_at
		 FROM requisition_packaging WHERE requisition_id = $1 ORDER BY version DESC`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RequisitionPackaging
	for rows.Next() {
		p, err := s.scanPackaging(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveFinalPackaging retires the current final version and inserts the new
// one atomically. History rows are never deleted.
func (s *Store) SaveFinalPackaging(ctx context.Context, p models.RequisitionPackaging) error {
	packagesJSON, err := json.Marshal(p.Packages)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE requisition_packaging SET is_final = FALSE WHERE requisition_id = $1 AND is_final`,
			p.RequisitionID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO requisition_packaging
			 (id, requisition_id, version, packages, total_slot_demand, rounded_slot_demand, is_final, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.RequisitionID, p.Version, packagesJSON, p.TotalSlotDemand, p.RoundedSlotDemand, p.IsFinal, p.CreatedBy, p.CreatedAt)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanPackaging(row rowScanner) (models.RequisitionPackaging, error) {
	var p models.RequisitionPackaging
	var packagesJSON []byte
	if err := row.Scan(&p.ID, &p.RequisitionID, &p.Version, &packagesJSON, &p.TotalSlotDemand, &p.RoundedSlotDemand, &p.IsFinal, &p.CreatedBy, &p.CreatedAt); err != nil {
		return models.RequisitionPackaging{}, err
	}
	if err := json.Unmarshal(packagesJSON, &p.Packages); err != nil {
		return models.RequisitionPackaging{}, err
	}
	return p, nil
}

func (s *Store) GetVehicle(ctx context.Context, vehicleID string) (models.Vehicle, error) {
	var v models.Vehicle
	var tiersJSON []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT id, plate, gross_weight_kg, gross_volume_m3, tiers, updated_at FROM vehicles WHERE id = $1`,
		vehicleID).Scan(&v.ID, &v.Plate, &v.GrossWeightKg, &v.GrossVolumeM3, &tiersJSON, &v.UpdatedAt)
	if err != nil {
		return models.Vehicle{}, err
	}
	if err := json.Unmarshal(tiersJSON, &v.Tiers); err != nil {
		return models.Vehicle{}, err
	}
	return v, nil
}

func (s *Store) UpsertVehicle(ctx context.Context, v models.Vehicle) error {
	tiersJSON, err := json.Marshal(v.Tiers)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO vehicles (id, plate, gross_weight_kg, gross_volume_m3, tiers, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			plate = EXCLUDED.plate,
			gross_weight_kg = EXCLUDED.gross_weight_kg,
			gross_volume_m3 = EXCLUDED.gross_volume_m3,
			tiers = EXCLUDED.tiers,
			updated_at = EXCLUDED.updated_at`,
		v.ID, v.Plate, v.GrossWeightKg, v.GrossVolumeM3, tiersJSON, time.Now().UTC())
	return err
}
