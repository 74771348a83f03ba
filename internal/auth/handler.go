package auth

import (
	"strings"

	"estrich-qm-backend/internal/config"
	"estrich-qm-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
	PlantID  *uint           `json:"plant_id"`
}

// POST /api/auth/register-admin — nur solange noch kein Admin existiert
func RegisterAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name, E-Mail und Passwort sind erforderlich")
		}

		var count int64
		db.Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "Es existiert bereits ein Admin")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Passwort konnte nicht gehasht werden")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}

		if err := db.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Benutzer konnte nicht angelegt werden")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		})
	}
}

// POST /api/auth/users — Admin legt Werksbenutzer an
func CreateUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name, E-Mail und Passwort sind erforderlich")
		}
		switch body.Role {
		case models.RoleAdmin, models.RoleQualityEngineer, models.RoleLabTechnician:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Unbekannte Rolle")
		}
		// Werksrollen brauchen ein Werk
		if body.Role != models.RoleAdmin && body.PlantID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "plant_id ist für diese Rolle erforderlich")
		}
		if body.PlantID != nil {
			var plant models.Plant
			if err := db.First(&plant, "id = ?", *body.PlantID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Werk nicht gefunden")
			}
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Passwort konnte nicht gehasht werden")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
			PlantID:      body.PlantID,
		}
		if err := db.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Benutzer konnte nicht angelegt werden")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":       user.ID,
			"email":    user.Email,
			"role":     user.Role,
			"plant_id": user.PlantID,
		})
	}
}

func LoginHandler(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := db.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "E-Mail oder Passwort falsch")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "E-Mail oder Passwort falsch")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Token konnte nicht erzeugt werden")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":       user.ID,
				"name":     user.Name,
				"email":    user.Email,
				"role":     user.Role,
				"plant_id": user.PlantID,
			},
		})
	}
}

func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDVal := c.Locals(CtxUserIDKey)
		roleVal := c.Locals(CtxUserRoleKey)
		plantIDVal := c.Locals(CtxPlantIDKey)

		var user models.User
		if userID, ok := userIDVal.(uint); ok {
			if err := db.First(&user, userID).Error; err == nil {
				response := fiber.Map{
					"user_id":  user.ID,
					"name":     user.Name,
					"email":    user.Email,
					"role":     user.Role,
					"plant_id": user.PlantID,
				}

				if user.PlantID != nil {
					var plant models.Plant
					if err := db.First(&plant, *user.PlantID).Error; err == nil {
						response["plant"] = fiber.Map{
							"id":          plant.ID,
							"name":        plant.Name,
							"avcp_system": plant.AVCPSystem,
						}
					}
				}

				return c.JSON(response)
			}
		}

		// Fallback auf die Token-Claims
		return c.JSON(fiber.Map{
			"user_id":  userIDVal,
			"role":     roleVal,
			"plant_id": plantIDVal,
		})
	}
}
