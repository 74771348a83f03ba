package deviation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/conformity"
	"estrich-qm-backend/internal/models"
)

type CorrectiveActionInput struct {
	Kind        models.ActionKind `json:"kind"`
	Description string            `json:"description"`
	Responsible string            `json:"responsible"`
	PlannedStart time.Time        `json:"planned_start"`
	PlannedEnd   time.Time        `json:"planned_end"`
	ActualStart  *time.Time       `json:"actual_start"`
	ActualEnd    *time.Time       `json:"actual_end"`
}

type UpdateCorrectiveActionInput struct {
	Status             *models.ActionStatus `json:"status"`
	Description        *string              `json:"description"`
	Responsible        *string              `json:"responsible"`
	ActualStart        *time.Time           `json:"actual_start"`
	ActualEnd          *time.Time           `json:"actual_end"`
	VerificationResult *string              `json:"verification_result"`
	VerifiedBy         *string              `json:"verified_by"`
}

type EffectivenessCheckInput struct {
	Type            models.CheckType      `json:"type"`
	Method          models.CheckMethod    `json:"method"`
	SuccessCriteria string                `json:"success_criteria"`
	ConformityMode  models.ConformityMode `json:"conformity_mode"`
	PlannedDate     time.Time             `json:"planned_date"`
}

type CheckResultsInput struct {
	TestValues   []float64 `json:"test_values"`
	Observations string    `json:"observations"`
	PerformedBy  string    `json:"performed_by"`
	// Manuelle Bewertung für Prüfungen ohne Messwerte (audit, document_review, ...)
	Rating models.EffectivenessRating `json:"rating"`
}

// AddCorrectiveAction legt eine Korrekturmaßnahme an ("CA-<n>", laufend je
// Abweichung). Verfahrens- oder Systemänderungen setzen am Elternteil das
// ITT-Flag: der Prozess selbst hat sich geändert, die Erstprüfung muss
// wiederholt werden.
func (s *Service) AddCorrectiveAction(deviationID uint, in CorrectiveActionInput) (*models.CorrectiveAction, error) {
	if err := ValidateCorrectiveAction(in); err != nil {
		return nil, err
	}
	var dev models.Deviation
	if err := s.db.First(&dev, "id = ?", deviationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrDeviationNotFound, deviationID)
		}
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.CorrectiveAction{}).Where("deviation_id = ?", deviationID).Count(&count).Error; err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = models.ActionKindCorrection
	}
	action := models.CorrectiveAction{
		DeviationID:  deviationID,
		Number:       fmt.Sprintf("CA-%d", count+1),
		Kind:         kind,
		Description:  in.Description,
		Responsible:  in.Responsible,
		PlannedStart: in.PlannedStart,
		PlannedEnd:   in.PlannedEnd,
		ActualStart:  in.ActualStart,
		ActualEnd:    in.ActualEnd,
		Status:       models.ActionStatusPlanned,
	}
	if err := s.db.Create(&action).Error; err != nil {
		return nil, fmt.Errorf("Korrekturmaßnahme konnte nicht gespeichert werden: %w", err)
	}

	if (kind == models.ActionKindProcedureUpdate || kind == models.ActionKindSystemChange) && !dev.ITTRequired {
		dev.ITTRequired = true
		if err := s.db.Save(&dev).Error; err != nil {
			return nil, err
		}
		s.log.Info("Erstprüfung erneut erforderlich",
			zap.String("deviation", dev.Number),
			zap.String("action", action.Number))
	}

	return &action, nil
}

// Maßnahmen laufen nur vorwärts; cancelled und verified sind terminal.
var actionNext = map[models.ActionStatus][]models.ActionStatus{
	models.ActionStatusPlanned:    {models.ActionStatusInProgress, models.ActionStatusCancelled},
	models.ActionStatusInProgress: {models.ActionStatusCompleted, models.ActionStatusCancelled},
	models.ActionStatusCompleted:  {models.ActionStatusVerified},
	models.ActionStatusVerified:   {},
	models.ActionStatusCancelled:  {},
}

func validateActionTransition(from, to models.ActionStatus) error {
	for _, allowed := range actionNext[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidActionTransitionError{From: from, To: to}
}

// UpdateCorrectiveAction führt eine Maßnahme durch ihren Lebenszyklus und
// trägt Verifikationsdaten nach. Der Abschluss (completed/verified/cancelled)
// kann die Abweichung zum Kontrollpunkt effectiveness_check vorrücken.
func (s *Service) UpdateCorrectiveAction(deviationID, actionID uint, in UpdateCorrectiveActionInput) (*models.CorrectiveAction, error) {
	var action models.CorrectiveAction
	if err := s.db.First(&action, "id = ? AND deviation_id = ?", actionID, deviationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrActionNotFound, actionID)
		}
		return nil, err
	}

	if in.Description != nil {
		action.Description = *in.Description
	}
	if in.Responsible != nil {
		action.Responsible = *in.Responsible
	}
	if in.ActualStart != nil {
		action.ActualStart = in.ActualStart
	}
	if in.ActualEnd != nil {
		action.ActualEnd = in.ActualEnd
	}
	if action.ActualStart != nil && action.ActualEnd != nil {
		if err := checkDateRange("actual_end", *action.ActualStart, *action.ActualEnd); err != nil {
			return nil, err
		}
	}
	if in.VerificationResult != nil {
		action.VerificationResult = *in.VerificationResult
	}
	if in.VerifiedBy != nil {
		action.VerifiedBy = *in.VerifiedBy
		now := s.now()
		action.VerifiedAt = &now
	}

	finished := false
	if in.Status != nil && *in.Status != action.Status {
		if err := validateActionTransition(action.Status, *in.Status); err != nil {
			return nil, err
		}
		if *in.Status == models.ActionStatusCompleted && action.ActualEnd == nil {
			now := s.now()
			action.ActualEnd = &now
		}
		action.Status = *in.Status
		finished = action.Status == models.ActionStatusCompleted ||
			action.Status == models.ActionStatusVerified ||
			action.Status == models.ActionStatusCancelled
	}

	if err := s.db.Save(&action).Error; err != nil {
		return nil, fmt.Errorf("Korrekturmaßnahme konnte nicht gespeichert werden: %w", err)
	}
	s.log.Info("Korrekturmaßnahme aktualisiert",
		zap.String("action", action.Number),
		zap.String("status", string(action.Status)))

	if finished {
		var dev models.Deviation
		if err := s.db.First(&dev, "id = ?", deviationID).Error; err != nil {
			return nil, err
		}
		if err := s.refreshCompleteness(&dev); err != nil {
			return nil, err
		}
	}
	return &action, nil
}

// ScheduleEffectivenessCheck plant eine Wirksamkeitsprüfung ("EC-<n>").
func (s *Service) ScheduleEffectivenessCheck(deviationID uint, in EffectivenessCheckInput) (*models.EffectivenessCheck, error) {
	if err := ValidateEffectivenessCheck(in); err != nil {
		return nil, err
	}
	var dev models.Deviation
	if err := s.db.First(&dev, "id = ?", deviationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrDeviationNotFound, deviationID)
		}
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.EffectivenessCheck{}).Where("deviation_id = ?", deviationID).Count(&count).Error; err != nil {
		return nil, err
	}

	check := models.EffectivenessCheck{
		DeviationID:     deviationID,
		Number:          fmt.Sprintf("EC-%d", count+1),
		Type:            in.Type,
		Method:          in.Method,
		SuccessCriteria: in.SuccessCriteria,
		ConformityMode:  in.ConformityMode,
		PlannedDate:     in.PlannedDate,
	}
	if err := s.db.Create(&check).Error; err != nil {
		return nil, fmt.Errorf("Wirksamkeitsprüfung konnte nicht gespeichert werden: %w", err)
	}
	return &check, nil
}

// scheduleDefaultChecks legt die drei Standardprüfungen nach fehlgeschlagener
// Erstbewertung an: sofort (+3 Tage), kurzfristig (+14), langfristig (+90).
func (s *Service) scheduleDefaultChecks(dev *models.Deviation) error {
	now := s.now()
	defaults := []EffectivenessCheckInput{
		{
			Type:            models.CheckTypeImmediate,
			Method:          models.CheckMethodTest,
			SuccessCriteria: "Wiederholungsprüfung erreicht Zielklasse, 0 % Toleranz",
			PlannedDate:     now.AddDate(0, 0, 3),
		},
		{
			Type:            models.CheckTypeShortTerm,
			Method:          models.CheckMethodTrendAnalysis,
			SuccessCriteria: "Nächste 5 Chargen 100 % Konformität",
			PlannedDate:     now.AddDate(0, 0, 14),
		},
		{
			Type:            models.CheckTypeLongTerm,
			Method:          models.CheckMethodTrendAnalysis,
			SuccessCriteria: "3-Monats-Trend stabil, max. 1 geringfügige Wiederholung",
			PlannedDate:     now.AddDate(0, 0, 90),
		},
	}
	for _, in := range defaults {
		if _, err := s.ScheduleEffectivenessCheck(dev.ID, in); err != nil {
			return err
		}
	}
	return nil
}

// PerformEffectivenessCheck erfasst das Ergebnis einer Prüfung. Liegen
// Prüfwerte vor, wird gegen den Zielwert der Abweichung neu bewertet
// (Modus der Prüfung, sonst der der Abweichung). Bewertungsregel:
// bestanden → effective; min >= 95 % des Zielwerts → partially_effective;
// sonst not_effective mit Folgemaßnahmen-Flag.
func (s *Service) PerformEffectivenessCheck(checkID uint, in CheckResultsInput) error {
	var check models.EffectivenessCheck
	if err := s.db.First(&check, "id = ?", checkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w (ID %d)", ErrCheckNotFound, checkID)
		}
		return err
	}
	var dev models.Deviation
	if err := s.db.First(&dev, "id = ?", check.DeviationID).Error; err != nil {
		return fmt.Errorf("%w (ID %d)", ErrDeviationNotFound, check.DeviationID)
	}

	if len(in.TestValues) > 0 {
		mode := check.ConformityMode
		if mode == "" {
			mode = dev.ConformityMode
		}
		if mode == "" || dev.TargetClass == "" {
			return &ValidationError{Field: "test_values", Reason: "Abweichung hat weder Bewertungsmodus noch Zielklasse für eine Neubewertung"}
		}
		target, err := conformity.ParseClassTarget(dev.TargetClass)
		if err != nil {
			return &ValidationError{Field: "target_class", Reason: err.Error()}
		}
		res, err := conformity.Evaluate(mode, in.TestValues, target, 0)
		if err != nil {
			return err
		}
		check.Mean = &res.Mean
		check.StdDev = &res.StdDev
		check.EvaluationDetails = res.Details

		switch {
		case res.Passed:
			check.Rating = models.RatingEffective
		case res.MinValue >= 0.95*target:
			check.Rating = models.RatingPartiallyEffective
		default:
			check.Rating = models.RatingNotEffective
			check.FollowUpRequired = true
		}
	} else if in.Rating != "" {
		check.Rating = in.Rating
		if in.Rating == models.RatingNotEffective {
			check.FollowUpRequired = true
		}
	} else {
		return &ValidationError{Field: "results", Reason: "entweder Prüfwerte oder eine manuelle Bewertung erforderlich"}
	}

	now := s.now()
	check.PerformedAt = &now
	check.PerformedBy = in.PerformedBy
	if raw, err := json.Marshal(in); err == nil {
		check.Results = raw
	}

	if err := s.db.Save(&check).Error; err != nil {
		return fmt.Errorf("Wirksamkeitsprüfung konnte nicht gespeichert werden: %w", err)
	}
	s.log.Info("Wirksamkeitsprüfung durchgeführt",
		zap.String("deviation", dev.Number),
		zap.String("check", check.Number),
		zap.String("rating", string(check.Rating)))

	return s.refreshCompleteness(&dev)
}

// refreshCompleteness: sind keine Prüfungen mehr offen und keine Maßnahmen
// mehr in planned/in_progress, rückt die Abweichung auf effectiveness_check
// vor — der Kontrollpunkt "bereit zur Abschlussprüfung", nicht der Abschluss.
func (s *Service) refreshCompleteness(dev *models.Deviation) error {
	pending, err := s.GetPendingEffectivenessChecks(dev.ID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return nil
	}

	var openActions int64
	err = s.db.Model(&models.CorrectiveAction{}).
		Where("deviation_id = ? AND status IN ?", dev.ID,
			[]models.ActionStatus{models.ActionStatusPlanned, models.ActionStatusInProgress}).
		Count(&openActions).Error
	if err != nil {
		return err
	}
	if openActions > 0 {
		return nil
	}

	if dev.Status == models.DeviationStatusEffectivenessCheck {
		return nil
	}
	// Vorrücken nur, wenn der Lebenszyklus den Übergang zulässt
	if err := ValidateTransition(dev.Status, models.DeviationStatusEffectivenessCheck); err != nil {
		return nil
	}
	dev.Status = models.DeviationStatusEffectivenessCheck
	if err := s.db.Save(dev).Error; err != nil {
		return err
	}
	s.log.Info("Abweichung bereit zur Abschlussprüfung", zap.String("number", dev.Number))
	return nil
}

// GetPendingEffectivenessChecks: geplante, noch nicht durchgeführte Prüfungen
func (s *Service) GetPendingEffectivenessChecks(deviationID uint) ([]models.EffectivenessCheck, error) {
	var checks []models.EffectivenessCheck
	err := s.db.
		Where("deviation_id = ? AND performed_at IS NULL", deviationID).
		Order("planned_date ASC").
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}

// GetOverdueEffectivenessChecks: überfällige Prüfungen über alle Abweichungen.
// Kein Hintergrundprozess in diesem Kern; ein externer Abruf (Cron) fragt ab.
func (s *Service) GetOverdueEffectivenessChecks() ([]models.EffectivenessCheck, error) {
	var checks []models.EffectivenessCheck
	err := s.db.
		Where("planned_date < ? AND performed_at IS NULL", s.now()).
		Order("planned_date ASC").
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}
