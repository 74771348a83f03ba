package auditplan

import (
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
		&models.Audit{},
		&models.AuditChecklistItem{},
		&models.AuditFinding{},
	))
	return NewService(db, zap.NewNop())
}

func createAudit(t *testing.T, s *Service) *models.Audit {
	t.Helper()
	plant := models.Plant{Name: "Werk Süd " + t.Name()}
	require.NoError(t, s.db.Create(&plant).Error)
	audit, err := s.CreateAudit(CreateAuditInput{
		PlantID:     plant.ID,
		Auditor:     "J. Wenzel",
		PlannedDate: time.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	return audit
}

func TestCreateAuditBuildsChecklist(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	assert.Equal(t, models.AuditStatusPlanned, audit.Status)
	assert.Equal(t, models.AuditKindInternal, audit.Kind, "leere Art fällt auf internal zurück")
	assert.Regexp(t, `^AUD-\d{4}-\d{2}$`, audit.Number)
	require.Len(t, audit.ChecklistItems, len(checklistTemplate))
	assert.Equal(t, 1, audit.ChecklistItems[0].Position)
	assert.Contains(t, audit.ChecklistItems[0].Section, "EN 13813")
	assert.Empty(t, audit.ChecklistItems[0].Status, "Punkte starten unbewertet")
}

func TestAuditStatusForwardOnly(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	completed := models.AuditStatusCompleted
	_, err := s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &completed})
	var terr *InvalidAuditTransitionError
	require.ErrorAs(t, err, &terr, "planned darf completed nicht überspringen")

	inProgress := models.AuditStatusInProgress
	updated, err := s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusInProgress, updated.Status)
	require.NotNil(t, updated.StartedAt)

	// kein Rückwärtsgang
	planned := models.AuditStatusPlanned
	_, err = s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &planned})
	require.ErrorAs(t, err, &terr)

	updated, err = s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)

	closed := models.AuditStatusClosed
	updated, err = s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &closed})
	require.NoError(t, err)
	require.NotNil(t, updated.ClosedAt)

	_, err = s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &inProgress})
	require.ErrorAs(t, err, &terr, "closed ist terminal")
}

func TestFindingsOnlyDuringInProgress(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	in := AddFindingInput{
		Description: "Kalibriernachweis Druckpresse 2 fehlt",
		Severity:    models.SeverityMajor,
		TargetDate:  time.Now().AddDate(0, 0, 30),
	}
	_, err := s.AddFinding(audit.ID, in)
	require.Error(t, err, "im Status planned keine Feststellungen")

	inProgress := models.AuditStatusInProgress
	_, err = s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &inProgress})
	require.NoError(t, err)

	finding, err := s.AddFinding(audit.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.FindingStatusOpen, finding.Status)

	_, err = s.AddFinding(99999, in)
	assert.ErrorIs(t, err, ErrAuditNotFound)
}

func TestOverdueFindingPromotion(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	inProgress := models.AuditStatusInProgress
	_, err := s.UpdateAudit(audit.ID, UpdateAuditInput{Status: &inProgress})
	require.NoError(t, err)

	soon, err := s.AddFinding(audit.ID, AddFindingInput{
		Description: "Prüfplan nicht aktualisiert",
		Severity:    models.SeverityMinor,
		TargetDate:  time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	closedFinding, err := s.AddFinding(audit.ID, AddFindingInput{
		Description: "Etikett ohne Chargennummer",
		Severity:    models.SeverityMinor,
		TargetDate:  time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	st := models.FindingStatusClosed
	_, err = s.UpdateFinding(closedFinding.ID, UpdateFindingInput{Status: &st})
	require.NoError(t, err)

	// Uhr hinter das Zieldatum stellen; Beförderung passiert beim Lesen
	s.now = func() time.Time { return time.Now().AddDate(0, 0, 5) }
	reloaded, err := s.GetAudit(audit.ID)
	require.NoError(t, err)

	byID := map[uint]models.FindingStatus{}
	for _, f := range reloaded.Findings {
		byID[f.ID] = f.Status
	}
	assert.Equal(t, models.FindingStatusOverdue, byID[soon.ID])
	assert.Equal(t, models.FindingStatusClosed, byID[closedFinding.ID], "geschlossene Feststellungen bleiben geschlossen")

	// persistiert, nicht nur im Speicher
	var stored models.AuditFinding
	require.NoError(t, s.db.First(&stored, "id = ?", soon.ID).Error)
	assert.Equal(t, models.FindingStatusOverdue, stored.Status)
}

func TestComplianceScore(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	// 10 Punkte: 7 conform, 1 nonconform, 1 observation, 1 not_applicable
	// → round(100*7/10) = 70; not_applicable zählt zur Grundgesamtheit
	statuses := []models.ChecklistItemStatus{
		models.ChecklistConform, models.ChecklistConform, models.ChecklistConform,
		models.ChecklistConform, models.ChecklistConform, models.ChecklistConform,
		models.ChecklistConform, models.ChecklistNonconform, models.ChecklistObservation,
		models.ChecklistNotApplicable,
	}
	for i, item := range audit.ChecklistItems {
		_, err := s.UpdateChecklistItem(audit.ID, item.ID, UpdateChecklistItemInput{Status: statuses[i]})
		require.NoError(t, err)
	}

	score, err := s.ComplianceScore(audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, score)

	_, err = s.ComplianceScore(99999)
	assert.ErrorIs(t, err, ErrAuditNotFound)
}

func TestUpdateChecklistItemValidation(t *testing.T) {
	s := setupService(t)
	audit := createAudit(t, s)

	_, err := s.UpdateChecklistItem(audit.ID, audit.ChecklistItems[0].ID, UpdateChecklistItemInput{Status: "maybe"})
	require.Error(t, err)

	_, err = s.UpdateChecklistItem(audit.ID, 99999, UpdateChecklistItemInput{Status: models.ChecklistConform})
	assert.ErrorIs(t, err, ErrItemNotFound)

	item, err := s.UpdateChecklistItem(audit.ID, audit.ChecklistItems[0].ID, UpdateChecklistItemInput{
		Status:  models.ChecklistNonconform,
		Comment: "FPC-Handbuch in Rev. 1 von 2019, nicht aktuell",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChecklistNonconform, item.Status)
	assert.NotEmpty(t, item.Comment)
}
