package report

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GET /api/deviations/export?plant_id=1
func ExportDeviationsHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plantID := uint(c.QueryInt("plant_id"))

		f, err := s.BuildDeviationRegister(plantID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Export konnte nicht erstellt werden")
		}
		defer f.Close()

		filename := fmt.Sprintf("abweichungsregister_%s.xlsx", time.Now().Format("2006-01-02"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))

		if err := f.Write(c.Response().BodyWriter()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Export konnte nicht geschrieben werden")
		}
		return nil
	}
}
