package masterdata

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

type CreateDeviceRequest struct {
	PlantID      uint   `json:"plant_id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
}

type CalibrateDeviceRequest struct {
	CalibratedAt string `json:"calibrated_at"` // "2026-08-31"
	ValidUntil   string `json:"valid_until"`
}

type UpdateDeviceStatusRequest struct {
	Status models.DeviceStatus `json:"status"`
}

// POST /api/devices
func CreateDeviceHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateDeviceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.PlantID == 0 || body.Name == "" || body.SerialNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id, name und serial_number sind erforderlich")
		}

		device := models.MeasuringDevice{
			PlantID:      body.PlantID,
			Name:         body.Name,
			SerialNumber: body.SerialNumber,
			Status:       models.DeviceStatusOK,
		}
		if err := db.Create(&device).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Gerät konnte nicht angelegt werden")
		}
		return c.Status(fiber.StatusCreated).JSON(device)
	}
}

// GET /api/devices?plant_id=1
func ListDevicesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := db.Model(&models.MeasuringDevice{})
		if pid := c.QueryInt("plant_id"); pid > 0 {
			query = query.Where("plant_id = ?", pid)
		}
		var devices []models.MeasuringDevice
		if err := query.Order("name ASC").Find(&devices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Geräte konnten nicht geladen werden")
		}
		return c.JSON(devices)
	}
}

// POST /api/devices/:id/calibrate — Kalibrierung nachtragen
func CalibrateDeviceHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var device models.MeasuringDevice
		if err := db.First(&device, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Gerät nicht gefunden")
		}

		var body CalibrateDeviceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		calibratedAt, err := time.Parse("2006-01-02", body.CalibratedAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "calibrated_at muss dem Format 'JJJJ-MM-TT' entsprechen")
		}
		validUntil, err := time.Parse("2006-01-02", body.ValidUntil)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "valid_until muss dem Format 'JJJJ-MM-TT' entsprechen")
		}
		if !validUntil.After(calibratedAt) {
			return fiber.NewError(fiber.StatusBadRequest, "valid_until muss nach calibrated_at liegen")
		}

		device.LastCalibration = &calibratedAt
		device.NextCalibration = &validUntil
		device.Status = models.DeviceStatusOK
		if err := db.Save(&device).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kalibrierung konnte nicht gespeichert werden")
		}
		return c.JSON(device)
	}
}

// PUT /api/devices/:id/status
func UpdateDeviceStatusHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var device models.MeasuringDevice
		if err := db.First(&device, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Gerät nicht gefunden")
		}

		var body UpdateDeviceStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		switch body.Status {
		case models.DeviceStatusOK, models.DeviceStatusDefect, models.DeviceStatusMaintenance:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Unbekannter Gerätestatus")
		}

		device.Status = body.Status
		if err := db.Save(&device).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Gerät konnte nicht aktualisiert werden")
		}
		return c.JSON(device)
	}
}
