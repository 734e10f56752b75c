package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetops/backend/internal/models"
)

type HTTPAdapter struct {
	BaseURL string
	Client  *http.Client
}

type optimizeRequest struct {
	WarehouseID       string             `json:"warehouse_id"`
	FacilityIDs       []string           `json:"facility_ids"`
	CapacityThreshold float64            `json:"capacity_threshold"`
	PriorityWeights   map[string]float64 `json:"priority_weights,omitempty"`
	VehicleIDs        []string           `json:"vehicle_ids,omitempty"`
}

func (h HTTPAdapter) OptimizeRoute(ctx context.Context, params models.OptimizationParams) (RouteResult, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 60 * time.Second}
	}

	payload := optimizeRequest{
		WarehouseID:       params.WarehouseID,
		FacilityIDs:       params.FacilityIDs,
		CapacityThreshold: params.CapacityThreshold,
		PriorityWeights:   params.PriorityWeights,
		VehicleIDs:        params.VehicleIDs,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/optimize", bytes.NewBuffer(b))
	if err != nil {
		return RouteResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return RouteResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RouteResult{}, errors.New("optimizer service error")
	}

	var r RouteResult
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return RouteResult{}, err
	}
	return r, nil
}
