package deviation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Plant{},
		&models.Recipe{},
		&models.Batch{},
		&models.MeasuringDevice{},
		&models.Deviation{},
		&models.DeviationMeasurement{},
		&models.CorrectiveAction{},
		&models.EffectivenessCheck{},
	))

	return NewService(db, zap.NewNop())
}

func seedPlantRecipeBatch(t *testing.T, s *Service) (models.Plant, models.Recipe, models.Batch) {
	t.Helper()
	plant := models.Plant{Name: "Werk Nord " + t.Name()}
	require.NoError(t, s.db.Create(&plant).Error)
	recipe := models.Recipe{PlantID: plant.ID, Code: "CT-C25-F4-" + t.Name(), Name: "Zementestrich C25", BinderType: "CT", DeclaredClasses: "C25,F4"}
	require.NoError(t, s.db.Create(&recipe).Error)
	batch := models.Batch{PlantID: plant.ID, RecipeID: recipe.ID, BatchNumber: "CH-" + t.Name(), ProducedAt: time.Now(), Status: models.BatchStatusProduced}
	require.NoError(t, s.db.Create(&batch).Error)
	return plant, recipe, batch
}

func measurementSeries(values ...float64) []MeasurementInput {
	ms := make([]MeasurementInput, len(values))
	for i, v := range values {
		ms[i] = MeasurementInput{Value: v, SampleDate: time.Now().AddDate(0, 0, -28)}
	}
	return ms
}

func baseInput(plant models.Plant) CreateDeviationInput {
	return CreateDeviationInput{
		PlantID:      plant.ID,
		Type:         models.DeviationTypeProduct,
		Source:       models.SourceFPCTest,
		Title:        "Druckfestigkeit unter Deklaration",
		DiscoveredAt: time.Now(),
		DiscoveredBy: "A. Brandt",
		CreatedBy:    "A. Brandt",
	}
}

// End-to-End-Szenario: C25-Serie mit n=5, min unter der 90-Prozent-Schwelle
func TestCreateDeviationFailedEvaluation(t *testing.T) {
	s := setupService(t)
	plant, recipe, batch := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.TargetClass = "C25"
	in.TestStandard = "EN 13892-2"
	in.ConformityMode = models.ConformityStatistics
	in.Measurements = measurementSeries(22.0, 23.5, 24.0, 21.5, 23.0)
	in.RecipeID = &recipe.ID
	in.BatchID = &batch.ID

	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	require.NotNil(t, dev.EvaluationPassed)
	assert.False(t, *dev.EvaluationPassed)
	assert.InDelta(t, 22.8, *dev.Mean, 1e-9)
	assert.InDelta(t, 21.5, *dev.MinValue, 1e-9)
	assert.Contains(t, dev.EvaluationDetails, "NICHT BESTANDEN")

	// automatische Einstufung: |21.5-25|/25 = 14 % → major
	assert.Equal(t, models.SeverityMajor, dev.Severity)
	assert.True(t, dev.ImmediateActionRequired)
	assert.True(t, dev.BatchBlocked)
	assert.True(t, dev.MarkingBlocked)
	assert.Equal(t, models.DispositionQuarantine, dev.Disposition)
	assert.Regexp(t, `^ABW-\d{4}-\d{4}$`, dev.Number)

	// Charge gesperrt, Sperrvermerk nennt die Abweichungsnummer
	var blocked models.Batch
	require.NoError(t, s.db.First(&blocked, "id = ?", batch.ID).Error)
	assert.Equal(t, models.BatchStatusQuarantined, blocked.Status)
	assert.Contains(t, blocked.Note, dev.Number)

	// genau drei Wirksamkeitsprüfungen bei +3/+14/+90 Tagen
	var checks []models.EffectivenessCheck
	require.NoError(t, s.db.Where("deviation_id = ?", dev.ID).Order("planned_date ASC").Find(&checks).Error)
	require.Len(t, checks, 3)
	assert.Equal(t, models.CheckTypeImmediate, checks[0].Type)
	assert.Equal(t, models.CheckTypeShortTerm, checks[1].Type)
	assert.Equal(t, models.CheckTypeLongTerm, checks[2].Type)
	assert.Equal(t, models.CheckMethodTest, checks[0].Method)
	assert.Equal(t, models.CheckMethodTrendAnalysis, checks[1].Method)
	now := time.Now()
	assert.WithinDuration(t, now.AddDate(0, 0, 3), checks[0].PlannedDate, time.Minute)
	assert.WithinDuration(t, now.AddDate(0, 0, 14), checks[1].PlannedDate, time.Minute)
	assert.WithinDuration(t, now.AddDate(0, 0, 90), checks[2].PlannedDate, time.Minute)
}

func TestCreateDeviationPassedEvaluation(t *testing.T) {
	s := setupService(t)
	plant, recipe, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(26.0, 27.5, 25.2)
	in.RecipeID = &recipe.ID

	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)
	require.NotNil(t, dev.EvaluationPassed)
	assert.True(t, *dev.EvaluationPassed)
	assert.False(t, dev.BatchBlocked)
	assert.Equal(t, models.DispositionPending, dev.Disposition)

	checks, err := s.GetPendingEffectivenessChecks(dev.ID)
	require.NoError(t, err)
	assert.Empty(t, checks, "bestandene Bewertung darf keine Prüfungen anlegen")
}

func TestCreateDeviationExplicitSeverityWins(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.Severity = models.SeverityObservation
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(24.0)

	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)
	// explizit übergebener Schweregrad wird nicht überschrieben
	assert.Equal(t, models.SeverityObservation, dev.Severity)
	// Eindämmung wird trotzdem erzwungen
	assert.True(t, dev.BatchBlocked)
}

func TestCreateDeviationValidation(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.Title = ""
	_, err := s.CreateDeviation(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	in = baseInput(plant)
	in.ConformityMode = models.ConformityStatistics
	_, err = s.CreateDeviation(in)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "measurements", verr.Field)

	in = baseInput(plant)
	in.AffectedCharacteristic = "25C"
	_, err = s.CreateDeviation(in)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "affected_characteristic", verr.Field)

	in = baseInput(plant)
	in.TestStandard = "ISO 9001"
	_, err = s.CreateDeviation(in)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "test_standard", verr.Field)
}

// open → closed überspringt den Lebenszyklus und muss scheitern
func TestTransitionGuard(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	dev, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)

	closed := models.DeviationStatusClosed
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Status: &closed})
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.DeviationStatusOpen, terr.From)
	assert.Equal(t, models.DeviationStatusClosed, terr.To)
	assert.Contains(t, err.Error(), "open")
	assert.Contains(t, err.Error(), "closed")

	// Datensatz unverändert
	reloaded, err := s.GetDeviation(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviationStatusOpen, reloaded.Status)
}

func advanceStatus(t *testing.T, s *Service, id uint, statuses ...models.DeviationStatus) {
	t.Helper()
	for i := range statuses {
		st := statuses[i]
		_, err := s.UpdateDeviation(id, UpdateDeviationInput{Status: &st})
		require.NoError(t, err, "Übergang nach %s", st)
	}
}

func TestClosureGates(t *testing.T) {
	s := setupService(t)
	plant, recipe, batch := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(24.0, 24.5)
	in.RecipeID = &recipe.ID
	in.BatchID = &batch.ID

	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)
	require.Len(t, mustPending(t, s, dev.ID), 3)

	advanceStatus(t, s, dev.ID,
		models.DeviationStatusInvestigation,
		models.DeviationStatusCorrectiveAction,
		models.DeviationStatusEffectivenessCheck)

	closed := models.DeviationStatusClosed

	// Gate 1: Disposition quarantine wurde automatisch gesetzt — zurück auf pending
	pending := models.DispositionPending
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Disposition: &pending})
	require.NoError(t, err)
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Status: &closed})
	var gerr *ClosureGateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "disposition", gerr.Gate)

	// Gate 2: Disposition gesetzt, Freigebender fehlt
	rework := models.DispositionRework
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Disposition: &rework})
	require.NoError(t, err)
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Status: &closed})
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "approval", gerr.Gate)

	// Gate 3: Freigebender gesetzt, aber Prüfungen noch offen
	approver := "QM-Leitung M. Feld"
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{ApprovedBy: &approver})
	require.NoError(t, err)
	_, err = s.UpdateDeviation(dev.ID, UpdateDeviationInput{Status: &closed})
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "effectiveness_checks", gerr.Gate)

	// alle Prüfungen durchführen, dann gelingt der Abschluss
	for _, check := range mustPending(t, s, dev.ID) {
		require.NoError(t, s.PerformEffectivenessCheck(check.ID, CheckResultsInput{
			TestValues:  []float64{26.0, 26.5},
			PerformedBy: "Labor",
		}))
	}
	updated, err := s.UpdateDeviation(dev.ID, UpdateDeviationInput{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.DeviationStatusClosed, updated.Status)
	require.NotNil(t, updated.ClosedAt)
	assert.Equal(t, approver, updated.ClosedBy)
}

func mustPending(t *testing.T, s *Service, deviationID uint) []models.EffectivenessCheck {
	t.Helper()
	checks, err := s.GetPendingEffectivenessChecks(deviationID)
	require.NoError(t, err)
	return checks
}

// drei Vorgänger in 180 Tagen zu Merkmal+Rezeptur machen die vierte systemisch
func TestSystemicIssueDetection(t *testing.T) {
	s := setupService(t)
	plant, recipe, _ := seedPlantRecipeBatch(t, s)

	for i := 0; i < 3; i++ {
		in := baseInput(plant)
		in.AffectedCharacteristic = "C25"
		in.RecipeID = &recipe.ID
		in.DiscoveredAt = time.Now().AddDate(0, 0, -30*(i+1))
		_, err := s.CreateDeviation(in)
		require.NoError(t, err)
	}

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.RecipeID = &recipe.ID
	in.Severity = models.SeverityMinor
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityMajor, dev.Severity)
	assert.Contains(t, dev.RootCauseConclusion, "SYSTEMISCHES PROBLEM")

	var stored models.Deviation
	require.NoError(t, s.db.First(&stored, "id = ?", dev.ID).Error)
	assert.Equal(t, models.SeverityMajor, stored.Severity)
	assert.Contains(t, stored.RootCauseConclusion, "SYSTEMISCHES PROBLEM")
}

func TestSystemicIssueIgnoresOldDeviations(t *testing.T) {
	s := setupService(t)
	plant, recipe, _ := seedPlantRecipeBatch(t, s)

	for i := 0; i < 3; i++ {
		in := baseInput(plant)
		in.AffectedCharacteristic = "C25"
		in.RecipeID = &recipe.ID
		in.DiscoveredAt = time.Now().AddDate(0, 0, -200-i)
		_, err := s.CreateDeviation(in)
		require.NoError(t, err)
	}

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.RecipeID = &recipe.ID
	in.Severity = models.SeverityMinor
	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMinor, dev.Severity)
	assert.NotContains(t, dev.RootCauseConclusion, "SYSTEMISCHES PROBLEM")
}

func TestUpdateReEvaluatesMeasurements(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.TargetClass = "C25"
	in.ConformityMode = models.ConformitySingleValue
	in.Measurements = measurementSeries(26.0, 27.0)

	dev, err := s.CreateDeviation(in)
	require.NoError(t, err)
	require.True(t, *dev.EvaluationPassed)

	updated, err := s.UpdateDeviation(dev.ID, UpdateDeviationInput{
		Measurements: measurementSeries(23.0, 22.0),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EvaluationPassed)
	assert.False(t, *updated.EvaluationPassed)
	assert.InDelta(t, 22.5, *updated.Mean, 1e-9)
	assert.True(t, updated.BatchBlocked, "Fehlschlag bei Neubewertung erzwingt Eindämmung")

	var count int64
	require.NoError(t, s.db.Model(&models.DeviationMeasurement{}).Where("deviation_id = ?", dev.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count, "alte Messreihe muss vollständig ersetzt sein")
}

func TestDeviceCalibrationGate(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	past := time.Now().AddDate(0, -1, 0)
	future := time.Now().AddDate(1, 0, 0)

	expired := models.MeasuringDevice{PlantID: plant.ID, Name: "Druckpresse 1", SerialNumber: "DP-1-" + t.Name(), Status: models.DeviceStatusOK, NextCalibration: &past}
	require.NoError(t, s.db.Create(&expired).Error)
	defect := models.MeasuringDevice{PlantID: plant.ID, Name: "Druckpresse 2", SerialNumber: "DP-2-" + t.Name(), Status: models.DeviceStatusDefect, NextCalibration: &future}
	require.NoError(t, s.db.Create(&defect).Error)
	valid := models.MeasuringDevice{PlantID: plant.ID, Name: "Druckpresse 3", SerialNumber: "DP-3-" + t.Name(), Status: models.DeviceStatusOK, NextCalibration: &future}
	require.NoError(t, s.db.Create(&valid).Error)

	ok, err := s.IsDeviceCalibrated(expired.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.IsDeviceCalibrated(defect.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.IsDeviceCalibrated(valid.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.IsDeviceCalibrated(99999)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	in := baseInput(plant)
	in.DeviceID = &expired.ID
	_, err = s.CreateDeviation(in)
	assert.ErrorIs(t, err, ErrDeviceNotCalibrated)

	in.DeviceID = &valid.ID
	_, err = s.CreateDeviation(in)
	assert.NoError(t, err)
}

func TestBlockBatchIdempotent(t *testing.T) {
	s := setupService(t)
	_, _, batch := seedPlantRecipeBatch(t, s)

	require.NoError(t, s.BlockBatch(batch.ID, "ABW-2026-0001"))
	var blocked models.Batch
	require.NoError(t, s.db.First(&blocked, "id = ?", batch.ID).Error)
	note := blocked.Note

	// zweiter Aufruf: kein Fehler, kein veränderter Vermerk
	require.NoError(t, s.BlockBatch(batch.ID, "ABW-2026-0002"))
	require.NoError(t, s.db.First(&blocked, "id = ?", batch.ID).Error)
	assert.Equal(t, note, blocked.Note)

	assert.ErrorIs(t, s.BlockBatch(99999, "ABW-2026-0003"), ErrBatchNotFound)
}

func TestNumberSequence(t *testing.T) {
	s := setupService(t)
	plant, _, _ := seedPlantRecipeBatch(t, s)

	first, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)
	second, err := s.CreateDeviation(baseInput(plant))
	require.NoError(t, err)

	prefix := fmt.Sprintf("ABW-%d-", time.Now().Year())
	assert.Equal(t, prefix+"0001", first.Number)
	assert.Equal(t, prefix+"0002", second.Number)

	// die Zählung läuft je Werk: ein zweites Werk beginnt wieder bei 0001
	other := models.Plant{Name: "Werk Ost " + t.Name()}
	require.NoError(t, s.db.Create(&other).Error)
	third, err := s.CreateDeviation(baseInput(other))
	require.NoError(t, err)
	assert.Equal(t, prefix+"0001", third.Number)
}

func TestListDeviationsFilters(t *testing.T) {
	s := setupService(t)
	plant, recipe, _ := seedPlantRecipeBatch(t, s)

	in := baseInput(plant)
	in.AffectedCharacteristic = "C25"
	in.RecipeID = &recipe.ID
	_, err := s.CreateDeviation(in)
	require.NoError(t, err)

	in = baseInput(plant)
	in.AffectedCharacteristic = "F4"
	in.Type = models.DeviationTypeProcess
	_, err = s.CreateDeviation(in)
	require.NoError(t, err)

	all, err := s.ListDeviations(ListFilters{PlantID: &plant.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	c25, err := s.ListDeviations(ListFilters{Characteristic: "C25"})
	require.NoError(t, err)
	require.Len(t, c25, 1)
	assert.Equal(t, "C25", c25[0].AffectedCharacteristic)

	proc, err := s.ListDeviations(ListFilters{Type: models.DeviationTypeProcess})
	require.NoError(t, err)
	assert.Len(t, proc, 1)
}
