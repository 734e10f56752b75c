package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/backend/internal/db"
	"github.com/fleetops/backend/internal/service"
)

type Handler struct {
	Store        *db.Store
	Packaging    *service.PackagingService
	Slots        *service.SlotService
	Lifecycle    *service.LifecycleService
	Optimization *service.OptimizationService
	Validator    *validator.Validate
	Logger       zerolog.Logger
	AdminKey     string
}

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// actor returns the identity of the caller as supplied by the auth backend.
// This core treats it as opaque audit input.
func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor"); a != "" {
		return a
	}
	return "system"
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses:
// caller-input problems are 400, business/state conflicts are 409, unknown
// rows are 404, everything else is 500.
func writeServiceError(c *gin.Context, err error) {
	var dims service.InvalidDimensionsError
	if errors.As(err, &dims) {
		writeError(c, http.StatusBadRequest, dims.Code(), dims.Error(), nil)
		return
	}
	var tier service.InvalidTierConfigError
	if errors.As(err, &tier) {
		writeError(c, http.StatusBadRequest, tier.Code(), tier.Error(), nil)
		return
	}
	var capErr service.CapacityExceededError
	if errors.As(err, &capErr) {
		writeError(c, http.StatusConflict, capErr.Code(), capErr.Error(), gin.H{
			"facility_id":     capErr.FacilityID,
			"package_id":      capErr.PackageID,
			"shortfall_kg":    capErr.ShortfallKg,
			"shortfall_m3":    capErr.ShortfallM3,
			"shortfall_slots": capErr.ShortfallSlots,
		})
		return
	}
	var assignErr service.AssignmentFailedError
	if errors.As(err, &assignErr) {
		writeError(c, http.StatusConflict, assignErr.Code(), assignErr.Error(), nil)
		return
	}
	var trans service.InvalidTransitionError
	if errors.As(err, &trans) {
		writeError(c, http.StatusConflict, trans.Code(), trans.Error(), gin.H{
			"from": string(trans.From),
			"to":   string(trans.To),
		})
		return
	}
	var runTrans service.InvalidRunTransitionError
	if errors.As(err, &runTrans) {
		writeError(c, http.StatusConflict, runTrans.Code(), runTrans.Error(), gin.H{
			"from": string(runTrans.From),
			"to":   string(runTrans.To),
		})
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return
	}
	writeError(c, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func parseIntQuery(c *gin.Context, name string) (int, error) {
	return strconv.Atoi(c.Query(name))
}
