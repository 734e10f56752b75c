package models

import "time"

type RequisitionItem struct {
	ID            string  `json:"id"`
	RequisitionID string  `json:"requisition_id"`
	Description   string  `json:"description"`
	Quantity      int     `json:"quantity"`
	UnitWeightKg  float64 `json:"unit_weight_kg"`
	UnitVolumeM3  float64 `json:"unit_volume_m3"`
}

// WeightKg is the aggregated weight of the line (quantity * unit weight).
func (i RequisitionItem) WeightKg() float64 {
	return float64(i.Quantity) * i.UnitWeightKg
}

// VolumeM3 is the aggregated volume of the line (quantity * unit volume).
func (i RequisitionItem) VolumeM3() float64 {
	return float64(i.Quantity) * i.UnitVolumeM3
}

type PackagingRule struct {
	PackagingType string  `json:"packaging_type"`
	MaxWeightKg   float64 `json:"max_weight_kg"`
	MaxVolumeM3   float64 `json:"max_volume_m3"`
	SlotCost      float64 `json:"slot_cost"`
	CatchAll      bool    `json:"catch_all"`
}

type Package struct {
	ID            string   `json:"id"`
	PackagingType string   `json:"packaging_type"`
	ItemIDs       []string `json:"item_ids"`
	WeightKg      float64  `json:"weight_kg"`
	VolumeM3      float64  `json:"volume_m3"`
	SlotCost      float64  `json:"slot_cost"`
}

type RequisitionPackaging struct {
	ID                string    `json:"id"`
	RequisitionID     string    `json:"requisition_id"`
	Version           int       `json:"version"`
	Packages          []Package `json:"packages"`
	TotalSlotDemand   float64   `json:"total_slot_demand"`
	RoundedSlotDemand int       `json:"rounded_slot_demand"`
	IsFinal           bool      `json:"is_final"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type VehicleTier struct {
	TierName    string   `json:"tier_name"`
	TierOrder   int      `json:"tier_order"`
	MaxWeightKg *float64 `json:"max_weight_kg"`
	MaxVolumeM3 *float64 `json:"max_volume_m3"`
	SlotCount   int      `json:"slot_count"`
	WeightPct   *float64 `json:"weight_pct,omitempty"`
	VolumePct   *float64 `json:"volume_pct,omitempty"`
}

type Vehicle struct {
	ID            string        `json:"id"`
	Plate         string        `json:"plate"`
	GrossWeightKg float64       `json:"gross_weight_kg"`
	GrossVolumeM3 float64       `json:"gross_volume_m3"`
	Tiers         []VehicleTier `json:"tiers"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

const (
	SlotStatusOccupied = "OCCUPIED"
	SlotStatusReleased = "RELEASED"
)

type SlotAssignment struct {
	ID            string    `json:"id"`
	VehicleID     string    `json:"vehicle_id"`
	BatchID       string    `json:"batch_id"`
	TierName      string    `json:"tier_name"`
	SlotNumber    int       `json:"slot_number"`
	FacilityID    string    `json:"facility_id"`
	SequenceOrder int       `json:"sequence_order"`
	PackageID     string    `json:"package_id"`
	LoadKg        float64   `json:"load_kg"`
	LoadVolumeM3  float64   `json:"load_volume_m3"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stop is one facility visit in route order, with the packages to drop there.
type Stop struct {
	FacilityID string    `json:"facility_id"`
	Packages   []Package `json:"packages"`
}

type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchReady     BatchStatus = "ready"
	BatchScheduled BatchStatus = "scheduled"
	BatchPublished BatchStatus = "published"
	BatchCancelled BatchStatus = "cancelled"
)

type SchedulerBatch struct {
	ID                     string      `json:"id"`
	WarehouseID            string      `json:"warehouse_id"`
	FacilityIDs            []string    `json:"facility_ids"`
	PlannedDate            time.Time   `json:"planned_date"`
	TimeWindowStart        string      `json:"time_window_start"`
	TimeWindowEnd          string      `json:"time_window_end"`
	DriverID               *string     `json:"driver_id"`
	VehicleID              *string     `json:"vehicle_id"`
	TotalDistanceKm        float64     `json:"total_distance_km"`
	CapacityUtilizationPct float64     `json:"capacity_utilization_pct"`
	Status                 BatchStatus `json:"status"`
	PublishedBatchID       *string     `json:"published_batch_id"`
	OptimizationRunID      *string     `json:"optimization_run_id"`
	CreatedBy              string      `json:"created_by"`
	UpdatedBy              string      `json:"updated_by"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

type RunStatus string

// Runs move pending -> running -> completed or failed. failed doubles as the
// cancellation outcome and is also reachable straight from pending, for runs
// cancelled before a worker claims them; there is no separate cancelled state.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type OptimizationParams struct {
	WarehouseID       string             `json:"warehouse_id"`
	FacilityIDs       []string           `json:"facility_ids"`
	CapacityThreshold float64            `json:"capacity_threshold"`
	PriorityWeights   map[string]float64 `json:"priority_weights,omitempty"`
	VehicleIDs        []string           `json:"vehicle_ids,omitempty"`
}

// DraftBatch is a candidate batch produced by an optimization run. It only
// becomes a persisted SchedulerBatch through an explicit materialize step.
type DraftBatch struct {
	FacilityIDs      []string `json:"facility_ids"`
	VehicleID        *string  `json:"vehicle_id"`
	TotalDistanceKm  float64  `json:"total_distance_km"`
	TotalDurationMin float64  `json:"total_duration_min"`
}

type OptimizationRun struct {
	ID                string             `json:"id"`
	Params            OptimizationParams `json:"params"`
	Status            RunStatus          `json:"status"`
	ResultBatches     []DraftBatch       `json:"result_batches,omitempty"`
	SchedulerBatchIDs []string           `json:"scheduler_batch_ids,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	SubmittedBy       string             `json:"submitted_by"`
	SubmittedAt       time.Time          `json:"submitted_at"`
	StartedAt         *time.Time         `json:"started_at,omitempty"`
	FinishedAt        *time.Time         `json:"finished_at,omitempty"`
}

type Facility struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	City string  `json:"city"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}
