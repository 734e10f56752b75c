package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fleetops/backend/internal/config"
	"github.com/fleetops/backend/internal/db"
	"github.com/fleetops/backend/internal/http/handlers"
	"github.com/fleetops/backend/internal/http/middleware"
	"github.com/fleetops/backend/internal/service"

	_ "github.com/fleetops/backend/docs"
)

func Router(cfg config.Config, store *db.Store, packaging *service.PackagingService, slots *service.SlotService, lifecycle *service.LifecycleService, optimization *service.OptimizationService, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", "X-Actor"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:        store,
		Packaging:    packaging,
		Slots:        slots,
		Lifecycle:    lifecycle,
		Optimization: optimization,
		Validator:    validator.New(),
		Logger:       logger,
		AdminKey:     cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/requisitions/:id/packaging", h.PackagingGet)
		api.GET("/vehicles/:id/tiers", h.TiersGet)
		api.GET("/vehicles/:id/slots", h.SlotsList)
		api.GET("/vehicles/:id/slots/availability", h.SlotAvailability)
		api.GET("/batches", h.BatchesList)
		api.GET("/batches/:id", h.BatchGet)
		api.GET("/optimization-runs/:id", h.RunGet)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/packaging/determine", h.PackagingDetermine)
		admin.POST("/requisitions/:id/packaging", h.PackagingCompute)
		admin.PUT("/vehicles/:id/tiers", h.TiersPut)
		admin.POST("/batches", h.BatchCreate)
		admin.PATCH("/batches/:id/assignment", h.BatchSetAssignment)
		admin.POST("/batches/:id/assign-slots", h.BatchAssignSlots)
		admin.POST("/batches/:id/transition", h.BatchTransition)
		admin.POST("/optimization-runs", h.RunSubmit)
		admin.POST("/optimization-runs/:id/claim", h.RunClaim)
		admin.POST("/optimization-runs/:id/execute", h.RunExecute)
		admin.POST("/optimization-runs/:id/complete", h.RunComplete)
		admin.POST("/optimization-runs/:id/fail", h.RunFail)
		admin.POST("/optimization-runs/:id/materialize", h.RunMaterialize)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
