package optimizer

import (
	"context"

	"github.com/fleetops/backend/internal/models"
)

// RouteBatch is one vehicle-load suggestion with its stops already ordered.
type RouteBatch struct {
	FacilityIDs      []string `json:"facility_ids"`
	VehicleID        *string  `json:"vehicle_id"`
	TotalDistanceKm  float64  `json:"total_distance_km"`
	TotalDurationMin float64  `json:"total_duration_min"`
}

type RouteResult struct {
	Batches []RouteBatch `json:"batches"`
}

// Adapter is the route-optimization collaborator. The stop order it returns
// is treated as given downstream; the engine never reorders it.
type Adapter interface {
	OptimizeRoute(ctx context.Context, params models.OptimizationParams) (RouteResult, error)
}
