package masterdata

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

type CreateRawMaterialLotRequest struct {
	PlantID      uint   `json:"plant_id"`
	MaterialName string `json:"material_name"`
	Supplier     string `json:"supplier"`
	LotNumber    string `json:"lot_number"`
	DeliveredAt  string `json:"delivered_at"` // "2026-08-31"
}

// POST /api/raw-material-lots
func CreateRawMaterialLotHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRawMaterialLotRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.PlantID == 0 || body.MaterialName == "" || body.LotNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id, material_name und lot_number sind erforderlich")
		}
		deliveredAt, err := time.Parse("2006-01-02", body.DeliveredAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "delivered_at muss dem Format 'JJJJ-MM-TT' entsprechen")
		}

		lot := models.RawMaterialLot{
			PlantID:      body.PlantID,
			MaterialName: body.MaterialName,
			Supplier:     body.Supplier,
			LotNumber:    body.LotNumber,
			DeliveredAt:  deliveredAt,
		}
		if err := db.Create(&lot).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Liefercharge konnte nicht angelegt werden")
		}
		return c.Status(fiber.StatusCreated).JSON(lot)
	}
}

// GET /api/raw-material-lots?plant_id=1
func ListRawMaterialLotsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := db.Model(&models.RawMaterialLot{})
		if pid := c.QueryInt("plant_id"); pid > 0 {
			query = query.Where("plant_id = ?", pid)
		}
		var lots []models.RawMaterialLot
		if err := query.Order("delivered_at DESC").Find(&lots).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Lieferchargen konnten nicht geladen werden")
		}
		return c.JSON(lots)
	}
}

type CreateTestRecordRequest struct {
	PlantID        uint                  `json:"plant_id"`
	BatchID        *uint                 `json:"batch_id"`
	RecipeID       uint                  `json:"recipe_id"`
	Kind           models.TestRecordKind `json:"kind"`
	Characteristic string                `json:"characteristic"`
	TestStandard   string                `json:"test_standard"`
	TestedAt       string                `json:"tested_at"` // "2026-08-31"
	TestedBy       string                `json:"tested_by"`
	Result         string                `json:"result"`
}

// POST /api/test-records
func CreateTestRecordHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTestRecordRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.PlantID == 0 || body.RecipeID == 0 || body.Characteristic == "" {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id, recipe_id und characteristic sind erforderlich")
		}
		kind := body.Kind
		if kind == "" {
			kind = models.TestRecordKindFPC
		}
		if kind != models.TestRecordKindFPC && kind != models.TestRecordKindITT {
			return fiber.NewError(fiber.StatusBadRequest, "kind muss fpc oder itt sein")
		}
		testedAt, err := time.Parse("2006-01-02", body.TestedAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "tested_at muss dem Format 'JJJJ-MM-TT' entsprechen")
		}

		record := models.TestRecord{
			PlantID:        body.PlantID,
			BatchID:        body.BatchID,
			RecipeID:       body.RecipeID,
			Kind:           kind,
			Characteristic: body.Characteristic,
			TestStandard:   body.TestStandard,
			TestedAt:       testedAt,
			TestedBy:       body.TestedBy,
			Result:         body.Result,
		}
		if err := db.Create(&record).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Prüfprotokoll konnte nicht angelegt werden")
		}
		return c.Status(fiber.StatusCreated).JSON(record)
	}
}

// GET /api/test-records?plant_id=1&recipe_id=2&kind=itt
func ListTestRecordsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := db.Model(&models.TestRecord{})
		if pid := c.QueryInt("plant_id"); pid > 0 {
			query = query.Where("plant_id = ?", pid)
		}
		if rid := c.QueryInt("recipe_id"); rid > 0 {
			query = query.Where("recipe_id = ?", rid)
		}
		if kind := c.Query("kind"); kind != "" {
			query = query.Where("kind = ?", kind)
		}
		var records []models.TestRecord
		if err := query.Order("tested_at DESC").Find(&records).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Prüfprotokolle konnten nicht geladen werden")
		}
		return c.JSON(records)
	}
}
