package optimizer

import (
	"context"
	"fmt"

	"github.com/fleetops/backend/internal/models"
	"github.com/fleetops/backend/internal/utils"
)

const avgSpeedKmh = 40.0

type FacilitySource interface {
	ListFacilities(ctx context.Context, ids []string) ([]models.Facility, error)
}

// MockAdapter builds routes by nearest-neighbor over facility coordinates.
// Good enough for local development and deterministic for tests; real
// deployments point OPTIMIZER_URL at the external solver instead.
type MockAdapter struct {
	Facilities FacilitySource
}

func (m MockAdapter) OptimizeRoute(ctx context.Context, params models.OptimizationParams) (RouteResult, error) {
	facilities, err := m.Facilities.ListFacilities(ctx, params.FacilityIDs)
	if err != nil {
		return RouteResult{}, err
	}
	if len(facilities) == 0 {
		return RouteResult{}, fmt.Errorf("mock optimizer: no facilities resolved")
	}

	ordered, distanceKm := nearestNeighborOrder(facilities)

	nBatches := 1
	if len(params.VehicleIDs) > 1 {
		nBatches = len(params.VehicleIDs)
		if nBatches > len(ordered) {
			nBatches = len(ordered)
		}
	}
	chunk := (len(ordered) + nBatches - 1) / nBatches

	var out []RouteBatch
	for i := 0; i < nBatches; i++ {
		start := i * chunk
		if start >= len(ordered) {
			break
		}
		end := start + chunk
		if end > len(ordered) {
			end = len(ordered)
		}
		ids := make([]string, 0, end-start)
		for _, f := range ordered[start:end] {
			ids = append(ids, f.ID)
		}
		b := RouteBatch{
			FacilityIDs:      ids,
			TotalDistanceKm:  distanceKm / float64(nBatches),
			TotalDurationMin: distanceKm / float64(nBatches) / avgSpeedKmh * 60,
		}
		if i < len(params.VehicleIDs) {
			v := params.VehicleIDs[i]
			b.VehicleID = &v
		}
		out = append(out, b)
	}
	return RouteResult{Batches: out}, nil
}

// nearestNeighborOrder starts at the first facility (deterministic for a
// given input order) and greedily hops to the closest unvisited one.
func nearestNeighborOrder(facilities []models.Facility) ([]models.Facility, float64) {
	if len(facilities) == 0 {
		return nil, 0
	}
	visited := make([]bool, len(facilities))
	ordered := make([]models.Facility, 0, len(facilities))

	cur := 0
	visited[0] = true
	ordered = append(ordered, facilities[0])
	total := 0.0

	for len(ordered) < len(facilities) {
		next := -1
		best := 0.0
		for i, f := range facilities {
			if visited[i] {
				continue
			}
			d := utils.HaversineKm(facilities[cur].Lat, facilities[cur].Lon, f.Lat, f.Lon)
			if next == -1 || d < best || (d == best && f.ID < facilities[next].ID) {
				next = i
				best = d
			}
		}
		visited[next] = true
		ordered = append(ordered, facilities[next])
		total += best
		cur = next
	}
	return ordered, total
}
