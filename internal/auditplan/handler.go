package auditplan

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"estrich-qm-backend/internal/conformity"
	"estrich-qm-backend/internal/models"
)

func httpError(err error) error {
	var terr *InvalidAuditTransitionError
	switch {
	case errors.As(err, &terr):
		return fiber.NewError(fiber.StatusConflict, terr.Error())
	case errors.Is(err, ErrAuditNotFound),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrFindingNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
}

func parseParam(c *fiber.Ctx, name string) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params(name), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Ungültige ID")
	}
	return id, nil
}

// POST /api/audits
func CreateAuditHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateAuditInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		audit, err := s.CreateAudit(body)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(audit)
	}
}

// GET /api/audits
func ListAuditsHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var plantID *uint
		if pid := uint(c.QueryInt("plant_id")); pid != 0 {
			plantID = &pid
		}
		audits, err := s.ListAudits(plantID, models.AuditStatus(c.Query("status")))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Audits konnten nicht geladen werden")
		}
		return c.JSON(audits)
	}
}

// GET /api/audits/:id
func GetAuditHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		audit, err := s.GetAudit(id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(audit)
	}
}

// PUT /api/audits/:id
func UpdateAuditHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		var body UpdateAuditInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		audit, err := s.UpdateAudit(id, body)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(audit)
	}
}

// PUT /api/audits/:id/checklist/:itemId
func UpdateChecklistItemHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auditID, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		itemID, err := parseParam(c, "itemId")
		if err != nil {
			return err
		}
		var body UpdateChecklistItemInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		item, err := s.UpdateChecklistItem(auditID, itemID, body)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(item)
	}
}

// POST /api/audits/:id/findings
func AddFindingHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		var body AddFindingInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		finding, err := s.AddFinding(id, body)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(finding)
	}
}

// PUT /api/audit-findings/:id
func UpdateFindingHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		var body UpdateFindingInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		finding, err := s.UpdateFinding(id, body)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(finding)
	}
}

// GET /api/audits/:id/compliance-score
func ComplianceScoreHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseParam(c, "id")
		if err != nil {
			return err
		}
		score, err := s.ComplianceScore(id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"audit_id": id, "compliance_score": score})
	}
}

// GET /api/audits/sampling-constant?n=20 — kA-Annahmekonstante für
// Stichprobenformulare
func SamplingConstantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		n := c.QueryInt("n")
		ka, err := conformity.KAFactor(n)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(fiber.Map{"n": n, "ka": ka})
	}
}
