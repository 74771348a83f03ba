package deviation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estrich-qm-backend/internal/models"
)

func actionInput() CorrectiveActionInput {
	return CorrectiveActionInput{
		Description:  "Mischzeit auf 90 Sekunden erhöhen",
		Responsible:  "Produktionsleitung",
		PlannedStart: time.Now(),
		PlannedEnd:   time.Now().AddDate(0, 0, 7),
	}
}

func TestAddCorrectiveActionNumbering(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)

	first, err := s.AddCorrectiveAction(dev.ID, actionInput())
	require.NoError(t, err)
	second, err := s.AddCorrectiveAction(dev.ID, actionInput())
	require.NoError(t, err)

	assert.Equal(t, "CA-1", first.Number)
	assert.Equal(t, "CA-2", second.Number)
	assert.Equal(t, models.ActionKindCorrection, first.Kind, "leere Art fällt auf correction zurück")
	assert.Equal(t, models.ActionStatusPlanned, first.Status)
}

func TestProcedureUpdateRequiresITT(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)
	require.False(t, dev.ITTRequired)

	in := actionInput()
	in.Kind = models.ActionKindProcedureUpdate
	_, err = s.AddCorrectiveAction(dev.ID, in)
	require.NoError(t, err)

	reloaded, err := s.GetDeviation(dev.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.ITTRequired, "Verfahrensänderung erfordert erneute Erstprüfung")
}

func TestCorrectiveActionDateInvariant(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)
	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)

	in := actionInput()
	in.PlannedEnd = in.PlannedStart.AddDate(0, 0, -1)
	_, err = s.AddCorrectiveAction(dev.ID, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "planned_end", verr.Field)

	_, err = s.AddCorrectiveAction(99999, actionInput())
	assert.ErrorIs(t, err, ErrDeviationNotFound)
}

// Eine offene Maßnahme hält die Abweichung auch nach der letzten Prüfung in
// corrective_action; erst ihr Abschluss rückt sie zum Kontrollpunkt vor.
func TestUpdateCorrectiveActionUnblocksDeviation(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	advanceStatus(t, s, dev.ID,
		models.DeviationStatusInvestigation,
		models.DeviationStatusCorrectiveAction)

	action, err := s.AddCorrectiveAction(dev.ID, actionInput())
	require.NoError(t, err)

	for _, check := range mustPending(t, s, dev.ID) {
		require.NoError(t, s.PerformEffectivenessCheck(check.ID, CheckResultsInput{
			TestValues:  []float64{26.0},
			PerformedBy: "Labor",
		}))
	}
	reloaded, err := s.GetDeviation(dev.ID)
	require.NoError(t, err)
	require.Equal(t, models.DeviationStatusCorrectiveAction, reloaded.Status)

	inProgress := models.ActionStatusInProgress
	updated, err := s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusInProgress, updated.Status)

	// noch in Arbeit: kein Vorrücken
	reloaded, err = s.GetDeviation(dev.ID)
	require.NoError(t, err)
	require.Equal(t, models.DeviationStatusCorrectiveAction, reloaded.Status)

	completed := models.ActionStatusCompleted
	updated, err = s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusCompleted, updated.Status)
	require.NotNil(t, updated.ActualEnd, "Abschluss ohne Ist-Ende setzt das Ist-Ende")

	reloaded, err = s.GetDeviation(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviationStatusEffectivenessCheck, reloaded.Status)

	// Verifikation nach dem Abschluss
	result := "Mischzeit im Leitsystem hinterlegt, drei Chargen konform"
	verifier := "QM-Leitung M. Feld"
	verified := models.ActionStatusVerified
	updated, err = s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{
		Status:             &verified,
		VerificationResult: &result,
		VerifiedBy:         &verifier,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusVerified, updated.Status)
	assert.Equal(t, verifier, updated.VerifiedBy)
	require.NotNil(t, updated.VerifiedAt)
}

func TestUpdateCorrectiveActionTransitionGuard(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)
	action, err := s.AddCorrectiveAction(dev.ID, actionInput())
	require.NoError(t, err)

	// planned darf completed/verified nicht überspringen
	verified := models.ActionStatusVerified
	_, err = s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{Status: &verified})
	var aerr *InvalidActionTransitionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, models.ActionStatusPlanned, aerr.From)
	assert.Equal(t, models.ActionStatusVerified, aerr.To)

	// abgebrochene Maßnahme ist terminal
	cancelled := models.ActionStatusCancelled
	_, err = s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{Status: &cancelled})
	require.NoError(t, err)
	inProgress := models.ActionStatusInProgress
	_, err = s.UpdateCorrectiveAction(dev.ID, action.ID, UpdateCorrectiveActionInput{Status: &inProgress})
	require.ErrorAs(t, err, &aerr)

	// Maßnahme muss zur angegebenen Abweichung gehören
	other, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)
	_, err = s.UpdateCorrectiveAction(other.ID, action.ID, UpdateCorrectiveActionInput{Status: &inProgress})
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestScheduleEffectivenessCheckContinuesNumbering(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	// Fehlschlag legt EC-1..EC-3 an, manuell geplante Prüfung wird EC-4
	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	check, err := s.ScheduleEffectivenessCheck(dev.ID, EffectivenessCheckInput{
		Type:            models.CheckTypeShortTerm,
		Method:          models.CheckMethodAudit,
		SuccessCriteria: "Arbeitsanweisung wird nachweislich angewendet",
		PlannedDate:     time.Now().AddDate(0, 0, 21),
	})
	require.NoError(t, err)
	assert.Equal(t, "EC-4", check.Number)

	_, err = s.ScheduleEffectivenessCheck(dev.ID, EffectivenessCheckInput{Type: models.CheckTypeImmediate})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "method", verr.Field)
}

func performFirstPending(t *testing.T, s *Service, deviationID uint, in CheckResultsInput) models.EffectivenessCheck {
	t.Helper()
	pending := mustPending(t, s, deviationID)
	require.NotEmpty(t, pending)
	require.NoError(t, s.PerformEffectivenessCheck(pending[0].ID, in))
	var check models.EffectivenessCheck
	require.NoError(t, s.db.First(&check, "id = ?", pending[0].ID).Error)
	return check
}

func TestPerformEffectivenessCheckRatings(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	// bestanden → effective
	check := performFirstPending(t, s, dev.ID, CheckResultsInput{
		TestValues:  []float64{26.0, 25.5},
		PerformedBy: "Labor",
	})
	assert.Equal(t, models.RatingEffective, check.Rating)
	assert.False(t, check.FollowUpRequired)
	require.NotNil(t, check.PerformedAt)
	assert.Equal(t, "Labor", check.PerformedBy)
	require.NotNil(t, check.Mean)
	assert.InDelta(t, 25.75, *check.Mean, 1e-9)

	// nicht bestanden, aber min >= 95 % von 25 (23.75) → partially_effective
	check = performFirstPending(t, s, dev.ID, CheckResultsInput{
		TestValues:  []float64{24.0, 24.5},
		PerformedBy: "Labor",
	})
	assert.Equal(t, models.RatingPartiallyEffective, check.Rating)
	assert.False(t, check.FollowUpRequired)

	// deutlich unter dem Zielwert → not_effective mit Folgemaßnahmen
	check = performFirstPending(t, s, dev.ID, CheckResultsInput{
		TestValues:  []float64{20.0},
		PerformedBy: "Labor",
	})
	assert.Equal(t, models.RatingNotEffective, check.Rating)
	assert.True(t, check.FollowUpRequired)
}

func TestPerformEffectivenessCheckManualRating(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)
	check, err := s.ScheduleEffectivenessCheck(dev.ID, EffectivenessCheckInput{
		Type:            models.CheckTypeShortTerm,
		Method:          models.CheckMethodDocumentReview,
		SuccessCriteria: "Prüfplan aktualisiert und freigegeben",
		PlannedDate:     time.Now().AddDate(0, 0, 14),
	})
	require.NoError(t, err)

	// ohne Prüfwerte und ohne Bewertung: Fehler
	err = s.PerformEffectivenessCheck(check.ID, CheckResultsInput{PerformedBy: "QM"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "results", verr.Field)

	require.NoError(t, s.PerformEffectivenessCheck(check.ID, CheckResultsInput{
		Observations: "Dokument liegt in Rev. 3 vor",
		PerformedBy:  "QM",
		Rating:       models.RatingNotEffective,
	}))
	var stored models.EffectivenessCheck
	require.NoError(t, s.db.First(&stored, "id = ?", check.ID).Error)
	assert.Equal(t, models.RatingNotEffective, stored.Rating)
	assert.True(t, stored.FollowUpRequired)
	assert.NotEmpty(t, stored.Results)
}

// Nach der letzten Prüfung und ohne offene Maßnahmen rückt die Abweichung
// aus corrective_action auf effectiveness_check vor.
func TestCompletenessAdvancesStatus(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	advanceStatus(t, s, dev.ID,
		models.DeviationStatusInvestigation,
		models.DeviationStatusCorrectiveAction)

	pending := mustPending(t, s, dev.ID)
	require.Len(t, pending, 3)
	for _, check := range pending {
		require.NoError(t, s.PerformEffectivenessCheck(check.ID, CheckResultsInput{
			TestValues:  []float64{26.0},
			PerformedBy: "Labor",
		}))
	}

	reloaded, err := s.GetDeviation(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviationStatusEffectivenessCheck, reloaded.Status)
}

// Offene Maßnahmen halten die Abweichung in corrective_action
func TestCompletenessBlockedByOpenActions(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	advanceStatus(t, s, dev.ID,
		models.DeviationStatusInvestigation,
		models.DeviationStatusCorrectiveAction)

	_, err = s.AddCorrectiveAction(dev.ID, actionInput())
	require.NoError(t, err)

	for _, check := range mustPending(t, s, dev.ID) {
		require.NoError(t, s.PerformEffectivenessCheck(check.ID, CheckResultsInput{
			TestValues:  []float64{26.0},
			PerformedBy: "Labor",
		}))
	}

	reloaded, err := s.GetDeviation(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviationStatusCorrectiveAction, reloaded.Status,
		"geplante Maßnahme verhindert das Vorrücken")
}

func TestOverdueEffectivenessChecks(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(23.0)
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	overdue, err := s.GetOverdueEffectivenessChecks()
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// Uhr 20 Tage vorstellen: +3 und +14 sind überfällig, +90 nicht
	s.now = func() time.Time { return time.Now().AddDate(0, 0, 20) }
	overdue, err = s.GetOverdueEffectivenessChecks()
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, models.CheckTypeImmediate, overdue[0].Type)
	assert.Equal(t, models.CheckTypeShortTerm, overdue[1].Type)
	assert.Equal(t, dev.ID, overdue[0].DeviationID)
}
