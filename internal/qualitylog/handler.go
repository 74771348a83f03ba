package qualitylog

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"estrich-qm-backend/internal/auth"
	"estrich-qm-backend/internal/models"
)

// GET /api/quality-logs?entity_type=deviation&entity_id=1&plant_id=1
func ListQualityLogsHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roleVal := c.Locals(auth.CtxUserRoleKey)
		role, ok := roleVal.(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Rolleninformation fehlt")
		}

		// Werksrollen sehen nur ihr eigenes Werk, Admin wählt per Query
		var plantID *uint
		if role == models.RoleAdmin {
			if pidStr := c.Query("plant_id"); pidStr != "" {
				var pid uint
				if _, err := fmt.Sscan(pidStr, &pid); err == nil && pid > 0 {
					plantID = &pid
				}
			}
		} else {
			pVal := c.Locals(auth.CtxPlantIDKey)
			if pPtr, ok := pVal.(*uint); ok && pPtr != nil {
				plantID = pPtr
			}
		}

		filters := ListFilters{
			PlantID:    plantID,
			EntityType: c.Query("entity_type"),
		}
		if eidStr := c.Query("entity_id"); eidStr != "" {
			var eid uint
			if _, err := fmt.Sscan(eidStr, &eid); err == nil && eid > 0 {
				filters.EntityID = &eid
			}
		}
		if uidStr := c.Query("user_id"); uidStr != "" {
			var uid uint
			if _, err := fmt.Sscan(uidStr, &uid); err == nil && uid > 0 {
				filters.UserID = &uid
			}
		}
		if fromStr := c.Query("from"); fromStr != "" {
			if d, err := time.Parse("2006-01-02", fromStr); err == nil {
				filters.From = &d
			}
		}
		if toStr := c.Query("to"); toStr != "" {
			if d, err := time.Parse("2006-01-02", toStr); err == nil {
				// bis zum Tagesende
				d = d.Add(24*time.Hour - time.Second)
				filters.To = &d
			}
		}

		logs, err := s.List(filters)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Protokoll konnte nicht geladen werden")
		}
		return c.JSON(logs)
	}
}
