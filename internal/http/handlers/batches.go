package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetops/backend/internal/models"
)

type createBatchRequest struct {
	WarehouseID     string   `json:"warehouse_id" validate:"required"`
	FacilityIDs     []string `json:"facility_ids" validate:"required,min=1"`
	PlannedDate     string   `json:"planned_date" validate:"required"`
	TimeWindowStart string   `json:"time_window_start"`
	TimeWindowEnd   string   `json:"time_window_end"`
	DriverID        *string  `json:"driver_id"`
	VehicleID       *string  `json:"vehicle_id"`
	TotalDistanceKm float64  `json:"total_distance_km"`
}

// @Summary Create scheduler batch
// @Description Creates a draft batch; facility_ids carry the route order from the optimizer
// @Tags batches
// @Accept json
// @Produce json
// @Success 201 {object} models.SchedulerBatch
// @Failure 400 {object} map[string]any
// @Router /api/batches [post]
func (h *Handler) BatchCreate(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "warehouse_id and facility_ids required", err.Error())
		return
	}
	plannedDate, err := time.Parse("2006-01-02", req.PlannedDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "planned_date must be YYYY-MM-DD", nil)
		return
	}

	now := time.Now().UTC()
	batch := models.SchedulerBatch{
		ID:              uuid.NewString(),
		WarehouseID:     req.WarehouseID,
		FacilityIDs:     req.FacilityIDs,
		PlannedDate:     plannedDate,
		TimeWindowStart: req.TimeWindowStart,
		TimeWindowEnd:   req.TimeWindowEnd,
		DriverID:        req.DriverID,
		VehicleID:       req.VehicleID,
		TotalDistanceKm: req.TotalDistanceKm,
		Status:          models.BatchDraft,
		CreatedBy:       actor(c),
		UpdatedBy:       actor(c),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.Store.InsertBatch(c.Request.Context(), batch); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// @Summary List scheduler batches
// @Tags batches
// @Produce json
// @Param status query string false "filter by status"
// @Success 200 {object} map[string]any
// @Router /api/batches [get]
func (h *Handler) BatchesList(c *gin.Context) {
	limit, _ := parseIntQuery(c, "limit")
	offset, _ := parseIntQuery(c, "offset")
	batches, err := h.Store.ListBatches(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// @Summary Batch details with slot assignments
// @Tags batches
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/batches/{id} [get]
func (h *Handler) BatchGet(c *gin.Context) {
	batch, err := h.Store.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	assignments, err := h.Store.ListBatchAssignments(c.Request.Context(), batch.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "slot_assignments": assignments})
}

type assignCrewRequest struct {
	DriverID  *string `json:"driver_id"`
	VehicleID *string `json:"vehicle_id"`
}

// @Summary Set batch driver and vehicle
// @Tags batches
// @Accept json
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} models.SchedulerBatch
// @Router /api/batches/{id}/assignment [patch]
func (h *Handler) BatchSetAssignment(c *gin.Context) {
	var req assignCrewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}

	batch, err := h.Store.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if batch.Status == models.BatchPublished || batch.Status == models.BatchCancelled {
		writeError(c, http.StatusConflict, "INVALID_TRANSITION", "cannot edit a terminal batch", nil)
		return
	}
	if err := h.Store.SetBatchAssignment(c.Request.Context(), batch.ID, req.DriverID, req.VehicleID, actor(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	updated, err := h.Store.GetBatch(c.Request.Context(), batch.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary Assign slots for a batch
// @Description Plans and persists the batch's slot assignments as one atomic unit
// @Tags batches
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/batches/{id}/assign-slots [post]
func (h *Handler) BatchAssignSlots(c *gin.Context) {
	batch, err := h.Store.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if batch.VehicleID == nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "batch has no vehicle assigned", nil)
		return
	}

	stops, missing, err := h.Store.ListStopPackages(c.Request.Context(), batch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if len(missing) > 0 {
		writeError(c, http.StatusConflict, "PACKAGING_NOT_FINAL", "packaging not finalized for some facilities", missing)
		return
	}

	assignments, err := h.Slots.AssignSlots(c.Request.Context(), batch.ID, *batch.VehicleID, stops)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	updated, err := h.Store.GetBatch(c.Request.Context(), batch.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batch":                    updated,
		"slot_assignments":         assignments,
		"capacity_utilization_pct": updated.CapacityUtilizationPct,
	})
}

type transitionRequest struct {
	Target string `json:"target" validate:"required,oneof=draft ready scheduled published cancelled"`
}

// @Summary Transition batch status
// @Description Moves the batch through its lifecycle, enforcing the guard table
// @Tags batches
// @Accept json
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} models.SchedulerBatch
// @Failure 409 {object} map[string]any
// @Router /api/batches/{id}/transition [post]
func (h *Handler) BatchTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "target must be a valid status", err.Error())
		return
	}

	batch, err := h.Lifecycle.Transition(c.Request.Context(), c.Param("id"), models.BatchStatus(req.Target), actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
