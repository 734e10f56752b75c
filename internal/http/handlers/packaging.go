package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/backend/internal/models"
	"github.com/fleetops/backend/internal/service"
)

// @Summary Requisition packaging history
// @Description Final packaging version and full audit history for a requisition
// @Tags packaging
// @Produce json
// @Param id path string true "requisition id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/requisitions/{id}/packaging [get]
func (h *Handler) PackagingGet(c *gin.Context) {
	requisitionID := c.Param("id")

	final, err := h.Store.GetFinalPackaging(c.Request.Context(), requisitionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	history, err := h.Store.ListPackagingHistory(c.Request.Context(), requisitionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if final == nil && len(history) == 0 {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No packaging computed for requisition", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"final": final, "history": history})
}

// @Summary Compute requisition packaging
// @Description Builds packages from the requisition items and stores a new final packaging version
// @Tags packaging
// @Produce json
// @Param id path string true "requisition id"
// @Success 200 {object} models.RequisitionPackaging
// @Failure 400 {object} map[string]any
// @Router /api/requisitions/{id}/packaging [post]
func (h *Handler) PackagingCompute(c *gin.Context) {
	requisitionID := c.Param("id")

	snapshot, err := h.Packaging.ComputeRequisitionPackaging(c.Request.Context(), requisitionID, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type determineTypeRequest struct {
	WeightKg float64 `json:"weight_kg" validate:"required"`
	VolumeM3 float64 `json:"volume_m3" validate:"required"`
}

// @Summary Determine packaging type
// @Description Maps a weight/volume pair to a packaging type and slot cost
// @Tags packaging
// @Accept json
// @Produce json
// @Success 200 {object} models.PackagingRule
// @Failure 400 {object} map[string]any
// @Router /api/packaging/determine [post]
func (h *Handler) PackagingDetermine(c *gin.Context) {
	var req determineTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "weight_kg and volume_m3 required", err.Error())
		return
	}

	rules, err := h.Store.ListPackagingRules(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if len(rules) == 0 {
		rules = service.DefaultPackagingRules()
	}

	rule, err := service.DeterminePackagingType(rules, req.WeightKg, req.VolumeM3)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type tierConfigRequest struct {
	GrossWeightKg float64              `json:"gross_weight_kg"`
	GrossVolumeM3 float64              `json:"gross_volume_m3"`
	Plate         string               `json:"plate"`
	Tiers         []models.VehicleTier `json:"tiers" validate:"required,min=1"`
}

// @Summary Vehicle tier configuration
// @Tags vehicles
// @Produce json
// @Param id path string true "vehicle id"
// @Success 200 {object} map[string]any
// @Router /api/vehicles/{id}/tiers [get]
func (h *Handler) TiersGet(c *gin.Context) {
	vehicle, err := h.Store.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id":  vehicle.ID,
		"tiers":       vehicle.Tiers,
		"total_slots": service.ComputeTotalSlots(vehicle.Tiers),
	})
}

// @Summary Save vehicle tier configuration
// @Description Validates the tier config, deriving weight/volume ceilings from percentage defaults where set
// @Tags vehicles
// @Accept json
// @Produce json
// @Param id path string true "vehicle id"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/vehicles/{id}/tiers [put]
func (h *Handler) TiersPut(c *gin.Context) {
	var req tierConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "at least one tier required", err.Error())
		return
	}

	tiers := req.Tiers
	if hasPercentDefaults(tiers) {
		derived, err := service.DeriveTierLimits(req.GrossWeightKg, req.GrossVolumeM3, tiers)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		tiers = derived
	}
	if err := service.ValidateTierConfig(tiers); err != nil {
		writeServiceError(c, err)
		return
	}

	vehicle := models.Vehicle{
		ID:            c.Param("id"),
		Plate:         req.Plate,
		GrossWeightKg: req.GrossWeightKg,
		GrossVolumeM3: req.GrossVolumeM3,
		Tiers:         tiers,
	}
	if err := h.Store.UpsertVehicle(c.Request.Context(), vehicle); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id":  vehicle.ID,
		"tiers":       tiers,
		"total_slots": service.ComputeTotalSlots(tiers),
	})
}

func hasPercentDefaults(tiers []models.VehicleTier) bool {
	for _, t := range tiers {
		if t.WeightPct != nil || t.VolumePct != nil {
			return true
		}
	}
	return false
}

// @Summary Vehicle slot occupancy
// @Tags vehicles
// @Produce json
// @Param id path string true "vehicle id"
// @Success 200 {object} map[string]any
// @Router /api/vehicles/{id}/slots [get]
func (h *Handler) SlotsList(c *gin.Context) {
	assignments, err := h.Store.ListActiveAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle_id": c.Param("id"), "assignments": assignments})
}

// @Summary Slot availability check
// @Tags vehicles
// @Produce json
// @Param id path string true "vehicle id"
// @Param tier query string true "tier name"
// @Param slot query int true "slot number"
// @Param excluding_batch_id query string false "batch to ignore"
// @Success 200 {object} map[string]any
// @Router /api/vehicles/{id}/slots/availability [get]
func (h *Handler) SlotAvailability(c *gin.Context) {
	slot, err := parseIntQuery(c, "slot")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "slot must be an integer", nil)
		return
	}
	tier := c.Query("tier")
	if tier == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "tier required", nil)
		return
	}

	available, err := h.Slots.IsSlotAvailable(c.Request.Context(), c.Param("id"),
		service.SlotKey{TierName: tier, SlotNumber: slot}, c.Query("excluding_batch_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vehicle_id":  c.Param("id"),
		"tier_name":   tier,
		"slot_number": slot,
		"available":   available,
	})
}
