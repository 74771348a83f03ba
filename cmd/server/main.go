package main

import (
	"log"
	"strings"

	"estrich-qm-backend/internal/auditplan"
	"estrich-qm-backend/internal/auth"
	"estrich-qm-backend/internal/config"
	"estrich-qm-backend/internal/database"
	"estrich-qm-backend/internal/deviation"
	"estrich-qm-backend/internal/logger"
	"estrich-qm-backend/internal/masterdata"
	"estrich-qm-backend/internal/models"
	"estrich-qm-backend/internal/qualitylog"
	"estrich-qm-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger konnte nicht initialisiert werden: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal("Datenbank nicht erreichbar", zap.Error(err))
	}

	deviationSvc := deviation.NewService(db, zlog)
	auditSvc := auditplan.NewService(db, zlog)
	logSvc := qualitylog.NewService(db, zlog)
	reportSvc := report.NewService(db)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			zlog.Error("Unerwarteter Fehler", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unerwarteter Serverfehler",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Öffentlich
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg))

	// Geschützt
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(db))

	// Admin: Benutzer- und Stammdatenverwaltung
	adminRoutes := protected.Group("")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/auth/users", auth.CreateUserHandler(db))

	adminRoutes.Post("/plants", masterdata.CreatePlantHandler(db))
	adminRoutes.Put("/plants/:id", masterdata.UpdatePlantHandler(db))

	adminRoutes.Post("/recipes", masterdata.CreateRecipeHandler(db))
	adminRoutes.Put("/recipes/:id", masterdata.UpdateRecipeHandler(db))
	adminRoutes.Post("/recipes/:id/versions", masterdata.AddRecipeVersionHandler(db))

	adminRoutes.Post("/devices", masterdata.CreateDeviceHandler(db))
	adminRoutes.Put("/devices/:id/status", masterdata.UpdateDeviceStatusHandler(db))

	// Stammdaten lesend, Kalibrierung und Chargen für alle Werksrollen
	protected.Get("/plants", masterdata.ListPlantsHandler(db))
	protected.Get("/plants/:id", masterdata.GetPlantHandler(db))
	protected.Get("/recipes", masterdata.ListRecipesHandler(db))
	protected.Get("/recipes/:id", masterdata.GetRecipeHandler(db))
	protected.Get("/devices", masterdata.ListDevicesHandler(db))
	protected.Post("/devices/:id/calibrate", masterdata.CalibrateDeviceHandler(db))
	protected.Get("/devices/:id/calibrated", deviation.DeviceCalibratedHandler(deviationSvc))
	protected.Post("/batches", masterdata.CreateBatchHandler(db))
	protected.Get("/batches", masterdata.ListBatchesHandler(db))
	protected.Get("/batches/:id", masterdata.GetBatchHandler(db))
	protected.Put("/batches/:id/status", masterdata.UpdateBatchStatusHandler(db))
	protected.Post("/raw-material-lots", masterdata.CreateRawMaterialLotHandler(db))
	protected.Get("/raw-material-lots", masterdata.ListRawMaterialLotsHandler(db))
	protected.Post("/test-records", masterdata.CreateTestRecordHandler(db))
	protected.Get("/test-records", masterdata.ListTestRecordsHandler(db))

	// Abweichungen
	protected.Post("/deviations", deviation.CreateDeviationHandler(deviationSvc, logSvc, db))
	protected.Get("/deviations", deviation.ListDeviationsHandler(deviationSvc))
	protected.Get("/deviations/export", report.ExportDeviationsHandler(reportSvc))
	protected.Get("/deviations/:id", deviation.GetDeviationHandler(deviationSvc))
	protected.Put("/deviations/:id", deviation.UpdateDeviationHandler(deviationSvc, logSvc, db))
	protected.Post("/deviations/:id/corrective-actions", deviation.AddCorrectiveActionHandler(deviationSvc, logSvc, db))
	protected.Put("/deviations/:id/corrective-actions/:actionId", deviation.UpdateCorrectiveActionHandler(deviationSvc, logSvc, db))
	protected.Post("/deviations/:id/effectiveness-checks", deviation.ScheduleEffectivenessCheckHandler(deviationSvc))
	protected.Get("/deviations/:id/effectiveness-checks/pending", deviation.ListPendingChecksHandler(deviationSvc))
	protected.Post("/effectiveness-checks/:id/perform", deviation.PerformEffectivenessCheckHandler(deviationSvc, logSvc, db))
	protected.Get("/effectiveness-checks/overdue", deviation.ListOverdueChecksHandler(deviationSvc))
	protected.Post("/evaluate", deviation.EvaluateHandler())

	// Audits
	protected.Post("/audits", auditplan.CreateAuditHandler(auditSvc))
	protected.Get("/audits", auditplan.ListAuditsHandler(auditSvc))
	protected.Get("/audits/sampling-constant", auditplan.SamplingConstantHandler())
	protected.Get("/audits/:id", auditplan.GetAuditHandler(auditSvc))
	protected.Put("/audits/:id", auditplan.UpdateAuditHandler(auditSvc))
	protected.Put("/audits/:id/checklist/:itemId", auditplan.UpdateChecklistItemHandler(auditSvc))
	protected.Post("/audits/:id/findings", auditplan.AddFindingHandler(auditSvc))
	protected.Get("/audits/:id/compliance-score", auditplan.ComplianceScoreHandler(auditSvc))
	protected.Put("/audit-findings/:id", auditplan.UpdateFindingHandler(auditSvc))

	// Qualitätsprotokoll
	protected.Get("/quality-logs", qualitylog.ListQualityLogsHandler(logSvc))

	zlog.Info("Server startet", zap.String("port", cfg.HTTPPort))
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		zlog.Fatal("Server beendet", zap.Error(err))
	}
}
