package masterdata

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

type PlantResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	AVCPSystem string `json:"avcp_system"`
	CreatedAt  string `json:"created_at"`
}

type CreatePlantRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	AVCPSystem string `json:"avcp_system"`
}

type UpdatePlantRequest struct {
	Name       *string `json:"name"`
	Address    *string `json:"address"`
	AVCPSystem *string `json:"avcp_system"`
}

func plantResponse(p models.Plant) PlantResponse {
	return PlantResponse{
		ID:         p.ID,
		Name:       p.Name,
		Address:    p.Address,
		AVCPSystem: p.AVCPSystem,
		CreatedAt:  p.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/plants
func CreatePlantHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePlantRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Werksname darf nicht leer sein")
		}

		plant := models.Plant{
			Name:       body.Name,
			Address:    body.Address,
			AVCPSystem: body.AVCPSystem,
		}
		if err := db.Create(&plant).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Werk konnte nicht angelegt werden")
		}

		return c.Status(fiber.StatusCreated).JSON(plantResponse(plant))
	}
}

// GET /api/plants
func ListPlantsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plants []models.Plant
		if err := db.Order("name ASC").Find(&plants).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Werke konnten nicht geladen werden")
		}

		res := make([]PlantResponse, 0, len(plants))
		for _, p := range plants {
			res = append(res, plantResponse(p))
		}
		return c.JSON(res)
	}
}

// GET /api/plants/:id
func GetPlantHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plant models.Plant
		if err := db.First(&plant, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Werk nicht gefunden")
		}
		return c.JSON(plantResponse(plant))
	}
}

// PUT /api/plants/:id
func UpdatePlantHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plant models.Plant
		if err := db.First(&plant, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Werk nicht gefunden")
		}

		var body UpdatePlantRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Werksname darf nicht leer sein")
			}
			plant.Name = name
		}
		if body.Address != nil {
			plant.Address = *body.Address
		}
		if body.AVCPSystem != nil {
			plant.AVCPSystem = *body.AVCPSystem
		}

		if err := db.Save(&plant).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Werk konnte nicht aktualisiert werden")
		}
		return c.JSON(plantResponse(plant))
	}
}
