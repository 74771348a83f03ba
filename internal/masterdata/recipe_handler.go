package masterdata

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

// Zulässige Bindemitteltypen nach EN 13813
var binderTypes = map[string]bool{
	"CT": true, // Zementestrich
	"CA": true, // Calciumsulfatestrich
	"MA": true, // Magnesiaestrich
	"AS": true, // Gussasphaltestrich
	"SR": true, // Kunstharzestrich
}

type CreateRecipeRequest struct {
	PlantID         uint   `json:"plant_id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	BinderType      string `json:"binder_type"`
	DeclaredClasses string `json:"declared_classes"`
}

type UpdateRecipeRequest struct {
	Name            *string              `json:"name"`
	DeclaredClasses *string              `json:"declared_classes"`
	Status          *models.RecipeStatus `json:"status"`
	ITTPassed       *bool                `json:"itt_passed"`
}

type AddRecipeVersionRequest struct {
	Composition string `json:"composition"`
	ChangeNote  string `json:"change_note"`
}

// POST /api/recipes
func CreateRecipeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRecipeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		body.Code = strings.TrimSpace(body.Code)
		body.BinderType = strings.ToUpper(strings.TrimSpace(body.BinderType))

		if body.PlantID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id ist erforderlich")
		}
		if body.Code == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Code und Name sind erforderlich")
		}
		if !binderTypes[body.BinderType] {
			return fiber.NewError(fiber.StatusBadRequest, "Bindemitteltyp muss CT, CA, MA, AS oder SR sein")
		}

		var plant models.Plant
		if err := db.First(&plant, "id = ?", body.PlantID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Werk nicht gefunden")
		}

		recipe := models.Recipe{
			PlantID:         body.PlantID,
			Code:            body.Code,
			Name:            body.Name,
			BinderType:      body.BinderType,
			DeclaredClasses: body.DeclaredClasses,
			Status:          models.RecipeStatusDraft,
		}
		if err := db.Create(&recipe).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Rezeptur konnte nicht angelegt werden")
		}
		return c.Status(fiber.StatusCreated).JSON(recipe)
	}
}

// GET /api/recipes?plant_id=1&status=active
func ListRecipesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := db.Model(&models.Recipe{})
		if pid := c.QueryInt("plant_id"); pid > 0 {
			query = query.Where("plant_id = ?", pid)
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var recipes []models.Recipe
		if err := query.Order("code ASC").Find(&recipes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Rezepturen konnten nicht geladen werden")
		}
		return c.JSON(recipes)
	}
}

// GET /api/recipes/:id
func GetRecipeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var recipe models.Recipe
		if err := db.Preload("Versions").First(&recipe, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Rezeptur nicht gefunden")
		}
		return c.JSON(recipe)
	}
}

// PUT /api/recipes/:id
func UpdateRecipeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var recipe models.Recipe
		if err := db.First(&recipe, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Rezeptur nicht gefunden")
		}

		var body UpdateRecipeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.Name != nil {
			recipe.Name = *body.Name
		}
		if body.DeclaredClasses != nil {
			recipe.DeclaredClasses = *body.DeclaredClasses
		}
		if body.Status != nil {
			switch *body.Status {
			case models.RecipeStatusDraft, models.RecipeStatusITTPending, models.RecipeStatusActive, models.RecipeStatusLocked:
			default:
				return fiber.NewError(fiber.StatusBadRequest, "Unbekannter Rezepturstatus")
			}
			// Freigabe nur nach bestandener Erstprüfung
			if *body.Status == models.RecipeStatusActive && !recipe.ITTPassed &&
				(body.ITTPassed == nil || !*body.ITTPassed) {
				return fiber.NewError(fiber.StatusConflict, "Freigabe erst nach bestandener Erstprüfung (ITT)")
			}
			recipe.Status = *body.Status
		}
		if body.ITTPassed != nil {
			recipe.ITTPassed = *body.ITTPassed
		}

		if err := db.Save(&recipe).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Rezeptur konnte nicht aktualisiert werden")
		}
		return c.JSON(recipe)
	}
}

// POST /api/recipes/:id/versions — neue Version mit laufender Nummer
func AddRecipeVersionHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var recipe models.Recipe
		if err := db.First(&recipe, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Rezeptur nicht gefunden")
		}

		var body AddRecipeVersionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		if body.ChangeNote == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Änderungsvermerk ist erforderlich")
		}

		var count int64
		if err := db.Model(&models.RecipeVersion{}).Where("recipe_id = ?", recipe.ID).Count(&count).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Versionen konnten nicht gezählt werden")
		}

		version := models.RecipeVersion{
			RecipeID:    recipe.ID,
			Version:     int(count) + 1,
			Composition: body.Composition,
			ChangeNote:  body.ChangeNote,
		}
		if err := db.Create(&version).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Version konnte nicht angelegt werden")
		}

		// Wesentliche Änderung: Erstprüfung verfällt
		recipe.ITTPassed = false
		recipe.Status = models.RecipeStatusITTPending
		if err := db.Save(&recipe).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Rezeptur konnte nicht aktualisiert werden")
		}

		return c.Status(fiber.StatusCreated).JSON(version)
	}
}
