package db

import "context"

// The partial unique index on OCCUPIED rows is what turns a concurrent
// double-booking of a physical slot into a unique violation; the service
// layer maps that onto its bounded retry.
const schema = `
CREATE TABLE IF NOT EXISTS facilities (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	lat  DOUBLE PRECISION NOT NULL,
	lon  DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS requisitions (
	id           TEXT PRIMARY KEY,
	facility_id  TEXT NOT NULL REFERENCES facilities(id),
	warehouse_id TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS requisition_items (
	id             TEXT PRIMARY KEY,
	requisition_id TEXT NOT NULL REFERENCES requisitions(id),
	description    TEXT NOT NULL DEFAULT '',
	quantity       INT NOT NULL,
	unit_weight_kg DOUBLE PRECISION NOT NULL,
	unit_volume_m3 DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS packaging_rules (
	packaging_type TEXT PRIMARY KEY,
	max_weight_kg  DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_volume_m3  DOUBLE PRECISION NOT NULL DEFAULT 0,
	slot_cost      DOUBLE PRECISION NOT NULL,
	catch_all      BOOLEAN NOT NULL DEFAULT FALSE,
	sort_order     INT NOT NULL
);

CREATE TABLE IF NOT EXISTS requisition_packaging (
	id                  TEXT PRIMARY KEY,
	requisition_id      TEXT NOT NULL REFERENCES requisitions(id),
	version             INT NOT NULL,
	packages            JSONB NOT NULL,
	total_slot_demand   DOUBLE PRECISION NOT NULL,
	rounded_slot_demand INT NOT NULL,
	is_final            BOOLEAN NOT NULL,
	created_by          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (requisition_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS requisition_packaging_final_idx
	ON requisition_packaging (requisition_id) WHERE is_final;

CREATE TABLE IF NOT EXISTS vehicles (
	id              TEXT PRIMARY KEY,
	plate           TEXT NOT NULL DEFAULT '',
	gross_weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
	gross_volume_m3 DOUBLE PRECISION NOT NULL DEFAULT 0,
	tiers           JSONB NOT NULL DEFAULT '[]',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scheduler_batches (
	id                       TEXT PRIMARY KEY,
	warehouse_id             TEXT NOT NULL,
	facility_ids             TEXT[] NOT NULL,
	planned_date             DATE NOT NULL,
	time_window_start        TEXT NOT NULL DEFAULT '',
	time_window_end          TEXT NOT NULL DEFAULT '',
	driver_id                TEXT,
	vehicle_id               TEXT,
	total_distance_km        DOUBLE PRECISION NOT NULL DEFAULT 0,
	capacity_utilization_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                   TEXT NOT NULL DEFAULT 'draft',
	published_batch_id       TEXT,
	optimization_run_id      TEXT,
	created_by               TEXT NOT NULL DEFAULT '',
	updated_by               TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS slot_assignments (
	id             TEXT PRIMARY KEY,
	vehicle_id     TEXT NOT NULL,
	batch_id       TEXT NOT NULL,
	tier_name      TEXT NOT NULL,
	slot_number    INT NOT NULL,
	facility_id    TEXT NOT NULL,
	sequence_order INT NOT NULL,
	package_id     TEXT NOT NULL,
	load_kg        DOUBLE PRECISION NOT NULL,
	load_volume_m3 DOUBLE PRECISION NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (vehicle_id, batch_id, tier_name, slot_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS slot_assignments_active_idx
	ON slot_assignments (vehicle_id, tier_name, slot_number) WHERE status = 'OCCUPIED';

CREATE TABLE IF NOT EXISTS optimization_runs (
	id                  TEXT PRIMARY KEY,
	params              JSONB NOT NULL,
	status              TEXT NOT NULL,
	result_batches      JSONB,
	scheduler_batch_ids TEXT[],
	error_message       TEXT NOT NULL DEFAULT '',
	submitted_by        TEXT NOT NULL DEFAULT '',
	submitted_at        TIMESTAMPTZ NOT NULL,
	started_at          TIMESTAMPTZ,
	finished_at         TIMESTAMPTZ
);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}
