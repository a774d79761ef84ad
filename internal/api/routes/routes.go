package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/netwarden/netwarden/internal/api/handlers"
	"github.com/netwarden/netwarden/internal/api/middleware"
	"github.com/netwarden/netwarden/internal/audit"
	"github.com/netwarden/netwarden/internal/config"
	"github.com/netwarden/netwarden/internal/metrics"
	"github.com/netwarden/netwarden/internal/models"
	"github.com/netwarden/netwarden/internal/services"
)

// Register performs automatic migrations, wires up the service layer and
// mounts the versioned API. The returned scheduler is started by the caller
// once the HTTP listener is up.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*services.Scheduler, error) {
	if err := db.AutoMigrate(
		&models.Device{},
		&models.Credential{},
		&models.Rule{},
		&models.Check{},
		&models.AuditRun{},
		&models.CheckResult{},
		&models.DeviceScore{},
		&models.RemediationAction{},
		&models.ConfigSnapshot{},
		&models.DriftRecord{},
		&models.User{},
		&models.Setting{},
		&models.Notification{},
		&models.NotificationProvider{},
		&models.AuditSchedule{},
		&models.EventLog{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// One lock table shared by audits and remediation so a device is never
	// touched by both at the same time.
	locks := audit.NewLockTable()

	licenseService := services.NewLicenseService(db, cfg.LicenseMaxDevices)
	notificationService := services.NewNotificationService(db)
	auditService := services.NewAuditService(db, cfg, licenseService, notificationService, locks)
	remediationService := services.NewRemediationService(db, cfg, licenseService, auditService, notificationService, locks)
	driftService := services.NewDriftService(db, notificationService, cfg.DriftThreshold)
	deviceService := services.NewDeviceService(db)
	ruleService := services.NewRuleService(db)
	authService := services.NewAuthService(db, cfg)
	scheduler := services.NewScheduler(db, auditService, driftService, cfg.DriftCron)

	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService)
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	ruleHandler := handlers.NewRuleHandler(ruleService)
	auditHandler := handlers.NewAuditHandler(auditService)
	remediationHandler := handlers.NewRemediationHandler(remediationService)
	driftHandler := handlers.NewDriftHandler(driftService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	scheduleHandler := handlers.NewScheduleHandler(scheduler)

	router.GET("/api/v1/health", healthHandler.Health)

	api := router.Group("/api/v1")
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.Auth(authService))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/devices", deviceHandler.List)
		protected.POST("/devices", deviceHandler.Create)
		protected.GET("/devices/:id", deviceHandler.Get)
		protected.PUT("/devices/:id", deviceHandler.Update)
		protected.DELETE("/devices/:id", deviceHandler.Delete)
		protected.GET("/devices/:id/snapshots", driftHandler.Snapshots)
		protected.POST("/devices/:id/baseline", driftHandler.SetBaseline)
		protected.POST("/devices/:id/drift", driftHandler.Detect)

		protected.GET("/credentials", deviceHandler.ListCredentials)
		protected.POST("/credentials", deviceHandler.CreateCredential)
		protected.DELETE("/credentials/:id", deviceHandler.DeleteCredential)

		protected.GET("/rules", ruleHandler.List)
		protected.POST("/rules", ruleHandler.Create)
		protected.POST("/rules/import", ruleHandler.Import)
		protected.GET("/rules/:id", ruleHandler.Get)
		protected.PUT("/rules/:id", ruleHandler.Update)
		protected.DELETE("/rules/:id", ruleHandler.Delete)

		protected.GET("/audits", auditHandler.List)
		protected.POST("/audits", auditHandler.Trigger)
		protected.GET("/audits/:id", auditHandler.Get)
		protected.GET("/audits/:id/results", auditHandler.Results)
		protected.GET("/audits/:id/scores", auditHandler.Scores)
		protected.POST("/audits/:id/cancel", auditHandler.Cancel)

		protected.GET("/audits/:id/remediations", remediationHandler.Actions)
		protected.POST("/remediations", middleware.RequireAdmin(), remediationHandler.Trigger)

		protected.GET("/drift", driftHandler.List)

		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/providers", notificationHandler.ListProviders)
		protected.POST("/notifications/providers", notificationHandler.CreateProvider)
		protected.PUT("/notifications/providers/:id", notificationHandler.UpdateProvider)
		protected.DELETE("/notifications/providers/:id", notificationHandler.DeleteProvider)
		protected.POST("/notifications/providers/test", notificationHandler.TestProvider)

		protected.GET("/schedules", scheduleHandler.List)
		protected.POST("/schedules", middleware.RequireAdmin(), scheduleHandler.Create)
		protected.DELETE("/schedules/:id", middleware.RequireAdmin(), scheduleHandler.Delete)
	}

	return scheduler, nil
}
