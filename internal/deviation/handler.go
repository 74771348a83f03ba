package deviation

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/auth"
	"estrich-qm-backend/internal/conformity"
	"estrich-qm-backend/internal/models"
	"estrich-qm-backend/internal/qualitylog"
)

// httpError übersetzt Fehler des Service in HTTP-Status.
func httpError(err error) error {
	var verr *ValidationError
	var terr *InvalidTransitionError
	var aerr *InvalidActionTransitionError
	var gerr *ClosureGateError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	case errors.As(err, &terr):
		return fiber.NewError(fiber.StatusConflict, terr.Error())
	case errors.As(err, &aerr):
		return fiber.NewError(fiber.StatusConflict, aerr.Error())
	case errors.As(err, &gerr):
		return fiber.NewError(fiber.StatusConflict, gerr.Error())
	case errors.Is(err, ErrDeviationNotFound),
		errors.Is(err, ErrActionNotFound),
		errors.Is(err, ErrCheckNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrBatchNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrDeviceNotCalibrated):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, conformity.ErrUnknownMode), errors.Is(err, conformity.ErrNoValues):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Interner Fehler")
	}
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Ungültige ID")
	}
	return id, nil
}

// Benutzerinformationen aus dem Token-Kontext, Name aus der Datenbank
func currentUser(c *fiber.Ctx, db *gorm.DB) (uint, string, *uint, error) {
	userIDVal := c.Locals(auth.CtxUserIDKey)
	userID, ok := userIDVal.(uint)
	if !ok {
		return 0, "", nil, fiber.NewError(fiber.StatusForbidden, "Benutzerinformation fehlt")
	}

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", nil, fiber.NewError(fiber.StatusInternalServerError, "Benutzer nicht gefunden")
	}

	var plantID *uint
	if pPtr, ok := c.Locals(auth.CtxPlantIDKey).(*uint); ok && pPtr != nil {
		plantID = pPtr
	}
	return userID, user.Name, plantID, nil
}

// Werksrollen dürfen nur im eigenen Werk arbeiten; Admin wählt frei.
func resolvePlantID(c *fiber.Ctx, requested uint) (uint, error) {
	role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Rolleninformation fehlt")
	}
	if role == models.RoleAdmin {
		if requested == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "plant_id ist erforderlich")
		}
		return requested, nil
	}
	pPtr, ok := c.Locals(auth.CtxPlantIDKey).(*uint)
	if !ok || pPtr == nil {
		return 0, fiber.NewError(fiber.StatusForbidden, "Werksinformation fehlt")
	}
	if requested != 0 && requested != *pPtr {
		return 0, fiber.NewError(fiber.StatusForbidden, "Kein Zugriff auf dieses Werk")
	}
	return *pPtr, nil
}

// POST /api/deviations
func CreateDeviationHandler(s *Service, logs *qualitylog.Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateDeviationInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		plantID, err := resolvePlantID(c, body.PlantID)
		if err != nil {
			return err
		}
		body.PlantID = plantID

		userID, userName, _, err := currentUser(c, db)
		if err != nil {
			return err
		}
		if body.CreatedBy == "" {
			body.CreatedBy = userName
		}
		if body.DiscoveredBy == "" {
			body.DiscoveredBy = userName
		}

		dev, err := s.CreateDeviation(body)
		if err != nil {
			return httpError(err)
		}

		_ = logs.WriteLog(qualitylog.LogOptions{
			PlantID:     &dev.PlantID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  "deviation",
			EntityID:    dev.ID,
			Action:      models.LogActionCreate,
			Description: fmt.Sprintf("Abweichung angelegt: %s (%s)", dev.Number, dev.Title),
			After:       dev,
		})

		return c.Status(fiber.StatusCreated).JSON(dev)
	}
}

// GET /api/deviations
func ListDeviationsHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requested := uint(c.QueryInt("plant_id"))
		plantID, err := resolvePlantID(c, requested)
		if err != nil {
			// Admin ohne plant_id sieht alle Werke
			role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
			if role != models.RoleAdmin {
				return err
			}
		}

		filters := ListFilters{
			Status:         models.DeviationStatus(c.Query("status")),
			Severity:       models.Severity(c.Query("severity")),
			Type:           models.DeviationType(c.Query("type")),
			Characteristic: c.Query("characteristic"),
		}
		if plantID != 0 {
			filters.PlantID = &plantID
		}
		if rid := uint(c.QueryInt("recipe_id")); rid != 0 {
			filters.RecipeID = &rid
		}

		devs, err := s.ListDeviations(filters)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Abweichungen konnten nicht geladen werden")
		}
		return c.JSON(devs)
	}
}

// GET /api/deviations/:id
func GetDeviationHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		dev, err := s.GetDeviation(id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(dev)
	}
}

// PUT /api/deviations/:id
func UpdateDeviationHandler(s *Service, logs *qualitylog.Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body UpdateDeviationInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		before, err := s.GetDeviation(id)
		if err != nil {
			return httpError(err)
		}

		dev, err := s.UpdateDeviation(id, body)
		if err != nil {
			return httpError(err)
		}

		userID, userName, _, uerr := currentUser(c, db)
		if uerr == nil {
			action := models.LogActionUpdate
			desc := fmt.Sprintf("Abweichung aktualisiert: %s", dev.Number)
			if body.Status != nil && *body.Status != before.Status {
				action = models.LogActionTransition
				desc = fmt.Sprintf("Statuswechsel %s: %s → %s", dev.Number, before.Status, dev.Status)
			}
			_ = logs.WriteLog(qualitylog.LogOptions{
				PlantID:     &dev.PlantID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "deviation",
				EntityID:    dev.ID,
				Action:      action,
				Description: desc,
				Before:      before,
				After:       dev,
			})
		}

		return c.JSON(dev)
	}
}

// POST /api/deviations/:id/corrective-actions
func AddCorrectiveActionHandler(s *Service, logs *qualitylog.Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		var body CorrectiveActionInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		action, err := s.AddCorrectiveAction(id, body)
		if err != nil {
			return httpError(err)
		}

		userID, userName, plantID, uerr := currentUser(c, db)
		if uerr == nil {
			_ = logs.WriteLog(qualitylog.LogOptions{
				PlantID:     plantID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "corrective_action",
				EntityID:    action.ID,
				Action:      models.LogActionCreate,
				Description: fmt.Sprintf("Korrekturmaßnahme %s angelegt", action.Number),
				After:       action,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(action)
	}
}

// PUT /api/deviations/:id/corrective-actions/:actionId
func UpdateCorrectiveActionHandler(s *Service, logs *qualitylog.Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		var actionID uint
		if _, err := fmt.Sscan(c.Params("actionId"), &actionID); err != nil || actionID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültige ID")
		}
		var body UpdateCorrectiveActionInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		action, err := s.UpdateCorrectiveAction(id, actionID, body)
		if err != nil {
			return httpError(err)
		}

		userID, userName, plantID, uerr := currentUser(c, db)
		if uerr == nil {
			_ = logs.WriteLog(qualitylog.LogOptions{
				PlantID:     plantID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "corrective_action",
				EntityID:    action.ID,
				Action:      models.LogActionUpdate,
				Description: fmt.Sprintf("Korrekturmaßnahme %s aktualisiert (Status %s)", action.Number, action.Status),
				After:       action,
			})
		}

		return c.JSON(action)
	}
}

// POST /api/deviations/:id/effectiveness-checks
func ScheduleEffectivenessCheckHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		var body EffectivenessCheckInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		check, err := s.ScheduleEffectivenessCheck(id, body)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(check)
	}
}

// GET /api/deviations/:id/effectiveness-checks/pending
func ListPendingChecksHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		checks, err := s.GetPendingEffectivenessChecks(id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(checks)
	}
}

// POST /api/effectiveness-checks/:id/perform
func PerformEffectivenessCheckHandler(s *Service, logs *qualitylog.Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		var body CheckResultsInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}

		userID, userName, plantID, uerr := currentUser(c, db)
		if uerr == nil && body.PerformedBy == "" {
			body.PerformedBy = userName
		}

		if err := s.PerformEffectivenessCheck(id, body); err != nil {
			return httpError(err)
		}

		if uerr == nil {
			_ = logs.WriteLog(qualitylog.LogOptions{
				PlantID:     plantID,
				UserID:      userID,
				UserName:    userName,
				EntityType:  "effectiveness_check",
				EntityID:    id,
				Action:      models.LogActionEvaluate,
				Description: fmt.Sprintf("Wirksamkeitsprüfung %d durchgeführt", id),
			})
		}

		return c.JSON(fiber.Map{"message": "Wirksamkeitsprüfung erfasst"})
	}
}

// GET /api/effectiveness-checks/overdue
func ListOverdueChecksHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		checks, err := s.GetOverdueEffectivenessChecks()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Prüfungen konnten nicht geladen werden")
		}
		return c.JSON(checks)
	}
}

// GET /api/devices/:id/calibrated
func DeviceCalibratedHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseIDParam(c)
		if err != nil {
			return err
		}
		ok, err := s.IsDeviceCalibrated(id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"device_id": id, "calibrated": ok})
	}
}

type EvaluateRequest struct {
	Mode       models.ConformityMode `json:"mode"`
	Values     []float64             `json:"values"`
	Target     float64               `json:"target"`
	SampleSize int                   `json:"sample_size"` // 0 = len(values)
}

// POST /api/evaluate — zustandslose Bewertung ohne Persistenz
func EvaluateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body EvaluateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Ungültiger Request-Body")
		}
		res, err := conformity.Evaluate(body.Mode, body.Values, body.Target, body.SampleSize)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(res)
	}
}
