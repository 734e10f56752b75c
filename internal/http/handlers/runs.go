package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/backend/internal/models"
)

type submitRunRequest struct {
	WarehouseID       string             `json:"warehouse_id" validate:"required"`
	FacilityIDs       []string           `json:"facility_ids" validate:"required,min=1"`
	CapacityThreshold float64            `json:"capacity_threshold" validate:"gte=0,lte=100"`
	PriorityWeights   map[string]float64 `json:"priority_weights"`
	VehicleIDs        []string           `json:"vehicle_ids"`
}

// @Summary Submit optimization run
// @Tags optimization
// @Accept json
// @Produce json
// @Success 201 {object} models.OptimizationRun
// @Failure 400 {object} map[string]any
// @Router /api/optimization-runs [post]
func (h *Handler) RunSubmit(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "warehouse_id and facility_ids required", err.Error())
		return
	}

	run, err := h.Optimization.SubmitRun(c.Request.Context(), models.OptimizationParams{
		WarehouseID:       req.WarehouseID,
		FacilityIDs:       req.FacilityIDs,
		CapacityThreshold: req.CapacityThreshold,
		PriorityWeights:   req.PriorityWeights,
		VehicleIDs:        req.VehicleIDs,
	}, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// @Summary Optimization run details
// @Tags optimization
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} models.OptimizationRun
// @Failure 404 {object} map[string]any
// @Router /api/optimization-runs/{id} [get]
func (h *Handler) RunGet(c *gin.Context) {
	run, err := h.Optimization.Store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Claim a pending run
// @Description Worker endpoint: moves the run from pending to running via CAS
// @Tags optimization
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} models.OptimizationRun
// @Failure 409 {object} map[string]any
// @Router /api/optimization-runs/{id}/claim [post]
func (h *Handler) RunClaim(c *gin.Context) {
	run, err := h.Optimization.ClaimRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Execute a pending run in-process
// @Description Claims the run, calls the route optimizer adapter, records the outcome
// @Tags optimization
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} models.OptimizationRun
// @Router /api/optimization-runs/{id}/execute [post]
func (h *Handler) RunExecute(c *gin.Context) {
	if err := h.Optimization.ExecuteRun(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	run, err := h.Optimization.Store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type completeRunRequest struct {
	ResultBatches []models.DraftBatch `json:"result_batches" validate:"required,min=1"`
}

// @Summary Complete a running run
// @Description Completion callback from the external optimization backend
// @Tags optimization
// @Accept json
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/optimization-runs/{id}/complete [post]
func (h *Handler) RunComplete(c *gin.Context) {
	var req completeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "result_batches required", err.Error())
		return
	}

	if err := h.Optimization.CompleteRun(c.Request.Context(), c.Param("id"), req.ResultBatches); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

type failRunRequest struct {
	ErrorMessage string `json:"error_message" validate:"required"`
}

// @Summary Fail or cancel a run
// @Tags optimization
// @Accept json
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/optimization-runs/{id}/fail [post]
func (h *Handler) RunFail(c *gin.Context) {
	var req failRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "error_message required", err.Error())
		return
	}

	if err := h.Optimization.FailRun(c.Request.Context(), c.Param("id"), req.ErrorMessage); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "failed"})
}

type materializeRunRequest struct {
	PlannedDate string `json:"planned_date" validate:"required"`
}

// @Summary Materialize a completed run
// @Description Converts the run's draft batches into persisted draft scheduler batches
// @Tags optimization
// @Accept json
// @Produce json
// @Param id path string true "run id"
// @Success 201 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/optimization-runs/{id}/materialize [post]
func (h *Handler) RunMaterialize(c *gin.Context) {
	var req materializeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "planned_date required", err.Error())
		return
	}
	plannedDate, err := time.Parse("2006-01-02", req.PlannedDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "planned_date must be YYYY-MM-DD", nil)
		return
	}

	batches, err := h.Optimization.MaterializeRun(c.Request.Context(), c.Param("id"), actor(c), plannedDate)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"batches": batches})
}
