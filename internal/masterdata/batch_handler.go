package masterdata

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

type CreateBatchRequest struct {
	PlantID         uint    `json:"plant_id"`
	RecipeID        uint    `json:"recipe_id"`
	RecipeVersionID *uint   `json:"recipe_version_id"`
	BatchNumber     string  `json:"batch_number"`
	ProducedAt      string  `json:"produced_at"` // "2026-08-31"
	QuantityTons    float64 `json:"quantity_tons"`
	Note            string  `json:"note"`
}

type UpdateBatchStatusRequest struct {
	Status models.BatchStatus `json:"status"`
	Note   string             `json:"note"`
}

// POST /api/batches
func CreateBatchHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		if body.PlantID == 0 || body.RecipeID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id und recipe_id sind erforderlich")
		}
		if body.BatchNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Chargennummer ist erforderlich")
		}

		producedAt, err := time.Parse("2006-01-02", body.ProducedAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Produktionsdatum muss dem Format 'JJJJ-MM-TT' entsprechen")
		}

		var recipe models.Recipe
		if err := db.First(&recipe, "id = ?", body.RecipeID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Rezeptur nicht gefunden")
		}
		// Produktion nur mit freigegebener Rezeptur
		if recipe.Status != models.RecipeStatusActive {
			return fiber.NewError(fiber.StatusConflict, "Rezeptur ist nicht für die Produktion freigegeben")
		}

		batch := models.Batch{
			PlantID:         body.PlantID,
			RecipeID:        body.RecipeID,
			RecipeVersionID: body.RecipeVersionID,
			BatchNumber:     body.BatchNumber,
			ProducedAt:      producedAt,
			QuantityTons:    body.QuantityTons,
			Status:          models.BatchStatusProduced,
			Note:            body.Note,
		}
		if err := db.Create(&batch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Charge konnte nicht angelegt werden")
		}
		return c.Status(fiber.StatusCreated).JSON(batch)
	}
}

// GET /api/batches?plant_id=1&status=quarantined
func ListBatchesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := db.Model(&models.Batch{})
		if pid := c.QueryInt("plant_id"); pid > 0 {
			query = query.Where("plant_id = ?", pid)
		}
		if rid := c.QueryInt("recipe_id"); rid > 0 {
			query = query.Where("recipe_id = ?", rid)
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var batches []models.Batch
		if err := query.Order("produced_at DESC").Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Chargen konnten nicht geladen werden")
		}
		return c.JSON(batches)
	}
}

// GET /api/batches/:id
func GetBatchHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batch models.Batch
		if err := db.Preload("Recipe").First(&batch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Charge nicht gefunden")
		}
		return c.JSON(batch)
	}
}

// PUT /api/batches/:id/status — Freigabe, Sperrung, Verschrottung
func UpdateBatchStatusHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batch models.Batch
		if err := db.First(&batch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Charge nicht gefunden")
		}

		var body UpdateBatchStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		switch body.Status {
		case models.BatchStatusProduced, models.BatchStatusReleased, models.BatchStatusQuarantined, models.BatchStatusScrapped:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Unbekannter Chargenstatus")
		}

		// Freigabe einer gesperrten Charge nur mit Begründung
		if batch.Status == models.BatchStatusQuarantined && body.Status == models.BatchStatusReleased && body.Note == "" {
			return fiber.NewError(fiber.StatusConflict, "Freigabe einer gesperrten Charge nur mit Begründung (note)")
		}

		batch.Status = body.Status
		if body.Note != "" {
			batch.Note = body.Note
		}
		if err := db.Save(&batch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Charge konnte nicht aktualisiert werden")
		}
		return c.JSON(batch)
	}
}
