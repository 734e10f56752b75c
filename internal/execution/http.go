package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetops/backend/internal/models"
)

type HTTPPublisher struct {
	BaseURL string
	Client  *http.Client
}

type publishRequest struct {
	BatchID         string   `json:"batch_id"`
	WarehouseID     string   `json:"warehouse_id"`
	FacilityIDs     []string `json:"facility_ids"`
	DriverID        *string  `json:"driver_id"`
	VehicleID       *string  `json:"vehicle_id"`
	PlannedDate     string   `json:"planned_date"`
	TimeWindowStart string   `json:"time_window_start"`
	TimeWindowEnd   string   `json:"time_window_end"`
}

type publishResponse struct {
	PublishedBatchID string `json:"published_batch_id"`
}

func (h HTTPPublisher) PublishBatch(ctx context.Context, batch models.SchedulerBatch) (string, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}

	payload := publishRequest{
		BatchID:         batch.ID,
		WarehouseID:     batch.WarehouseID,
		FacilityIDs:     batch.FacilityIDs,
		DriverID:        batch.DriverID,
		VehicleID:       batch.VehicleID,
		PlannedDate:     batch.PlannedDate.Format("2006-01-02"),
		TimeWindowStart: batch.TimeWindowStart,
		TimeWindowEnd:   batch.TimeWindowEnd,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/batches", bytes.NewBuffer(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("execution service error")
	}

	var r publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if r.PublishedBatchID == "" {
		return "", errors.New("execution service returned empty published_batch_id")
	}
	return r.PublishedBatchID, nil
}
