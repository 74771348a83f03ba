package auditplan

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

var (
	ErrAuditNotFound   = errors.New("Audit nicht gefunden")
	ErrItemNotFound    = errors.New("Checklistenpunkt nicht gefunden")
	ErrFindingNotFound = errors.New("Feststellung nicht gefunden")
)

// InvalidAuditTransitionError: Auditstatus kennt nur den Vorwärtsweg
// planned → in_progress → completed → closed.
type InvalidAuditTransitionError struct {
	From, To models.AuditStatus
}

func (e *InvalidAuditTransitionError) Error() string {
	return fmt.Sprintf("ungültiger Auditstatuswechsel: %s → %s", e.From, e.To)
}

// Prüfpunkte der werkseigenen Produktionskontrolle. Bei Anlage eines Audits
// wird die Vorlage vollständig in Checklistenpunkte kopiert; spätere
// Vorlagenänderungen wirken nicht auf laufende Audits zurück.
var checklistTemplate = []models.AuditChecklistItem{
	{Position: 1, Section: "EN 13813 §6.3.1", Question: "Ist die werkseigene Produktionskontrolle dokumentiert und aktuell?"},
	{Position: 2, Section: "EN 13813 §6.3.2", Question: "Werden Rohstoffe bei Eingang gegen die Spezifikation geprüft?"},
	{Position: 3, Section: "EN 13813 §6.3.2.2", Question: "Werden Abweichungen erfasst, bewertet und nachverfolgt?"},
	{Position: 4, Section: "EN 13813 §6.3.3", Question: "Entsprechen Prüfhäufigkeit und Probenahme dem Prüfplan?"},
	{Position: 5, Section: "EN 13813 §6.3.3", Question: "Sind die Prüfgeräte kalibriert und die Kalibriernachweise vollständig?"},
	{Position: 6, Section: "EN 13813 §6.3.4", Question: "Werden Korrekturmaßnahmen festgelegt und auf Wirksamkeit geprüft?"},
	{Position: 7, Section: "EN 13813 §6.3.5", Question: "Ist die Rückverfolgbarkeit der Chargen bis zum Rohstoff gegeben?"},
	{Position: 8, Section: "EN 13813 §6.3.6", Question: "Werden Aufzeichnungen mindestens zehn Jahre aufbewahrt?"},
	{Position: 9, Section: "EN 13813 §9.2", Question: "Erfolgt die Konformitätsbewertung nach dem deklarierten Verfahren?"},
	{Position: 10, Section: "EN 13813 ZA.3", Question: "Sind CE-Kennzeichnung und Leistungserklärung konsistent zur Deklaration?"},
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

type CreateAuditInput struct {
	PlantID     uint             `json:"plant_id"`
	Kind        models.AuditKind `json:"kind"`
	Auditor     string           `json:"auditor"`
	PlannedDate time.Time        `json:"planned_date"`
}

// CreateAudit legt das Audit an und erzeugt die Checkliste aus der Vorlage.
func (s *Service) CreateAudit(in CreateAuditInput) (*models.Audit, error) {
	if in.PlantID == 0 {
		return nil, fmt.Errorf("Werk erforderlich")
	}
	if in.Auditor == "" {
		return nil, fmt.Errorf("Auditor erforderlich")
	}
	if in.PlannedDate.IsZero() {
		return nil, fmt.Errorf("Plandatum erforderlich")
	}
	kind := in.Kind
	if kind == "" {
		kind = models.AuditKindInternal
	}

	number, err := s.nextNumber()
	if err != nil {
		return nil, err
	}

	audit := models.Audit{
		PlantID:     in.PlantID,
		Number:      number,
		Kind:        kind,
		Status:      models.AuditStatusPlanned,
		Auditor:     in.Auditor,
		PlannedDate: in.PlannedDate,
	}
	for _, tmpl := range checklistTemplate {
		audit.ChecklistItems = append(audit.ChecklistItems, models.AuditChecklistItem{
			Position: tmpl.Position,
			Section:  tmpl.Section,
			Question: tmpl.Question,
		})
	}

	if err := s.db.Create(&audit).Error; err != nil {
		return nil, fmt.Errorf("Audit konnte nicht gespeichert werden: %w", err)
	}
	s.log.Info("Audit angelegt",
		zap.String("number", audit.Number),
		zap.Uint("plant_id", audit.PlantID),
		zap.Int("checklist_items", len(audit.ChecklistItems)))
	return &audit, nil
}

// forward-only
var auditNext = map[models.AuditStatus]models.AuditStatus{
	models.AuditStatusPlanned:    models.AuditStatusInProgress,
	models.AuditStatusInProgress: models.AuditStatusCompleted,
	models.AuditStatusCompleted:  models.AuditStatusClosed,
}

type UpdateAuditInput struct {
	Status  *models.AuditStatus `json:"status"`
	Auditor *string             `json:"auditor"`
	Summary *string             `json:"summary"`
}

func (s *Service) UpdateAudit(id uint, in UpdateAuditInput) (*models.Audit, error) {
	audit, err := s.GetAudit(id)
	if err != nil {
		return nil, err
	}

	if in.Auditor != nil {
		audit.Auditor = *in.Auditor
	}
	if in.Summary != nil {
		audit.Summary = *in.Summary
	}
	if in.Status != nil && *in.Status != audit.Status {
		if auditNext[audit.Status] != *in.Status {
			return nil, &InvalidAuditTransitionError{From: audit.Status, To: *in.Status}
		}
		now := s.now()
		switch *in.Status {
		case models.AuditStatusInProgress:
			audit.StartedAt = &now
		case models.AuditStatusCompleted:
			audit.CompletedAt = &now
		case models.AuditStatusClosed:
			audit.ClosedAt = &now
		}
		audit.Status = *in.Status
	}

	if err := s.db.Save(audit).Error; err != nil {
		return nil, fmt.Errorf("Audit konnte nicht aktualisiert werden: %w", err)
	}
	return audit, nil
}

func (s *Service) GetAudit(id uint) (*models.Audit, error) {
	var audit models.Audit
	err := s.db.
		Preload("ChecklistItems", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Findings").
		First(&audit, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrAuditNotFound, id)
		}
		return nil, err
	}
	if err := s.promoteOverdueFindings(audit.Findings); err != nil {
		return nil, err
	}
	return &audit, nil
}

func (s *Service) ListAudits(plantID *uint, status models.AuditStatus) ([]models.Audit, error) {
	query := s.db.Model(&models.Audit{})
	if plantID != nil {
		query = query.Where("plant_id = ?", *plantID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var audits []models.Audit
	if err := query.Order("planned_date DESC").Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("Audits konnten nicht geladen werden: %w", err)
	}
	return audits, nil
}

type UpdateChecklistItemInput struct {
	Status  models.ChecklistItemStatus `json:"status"`
	Comment string                     `json:"comment"`
}

func (s *Service) UpdateChecklistItem(auditID, itemID uint, in UpdateChecklistItemInput) (*models.AuditChecklistItem, error) {
	switch in.Status {
	case models.ChecklistConform, models.ChecklistNonconform, models.ChecklistNotApplicable, models.ChecklistObservation:
	default:
		return nil, fmt.Errorf("unbekannter Punktstatus: %q", in.Status)
	}

	var item models.AuditChecklistItem
	if err := s.db.First(&item, "id = ? AND audit_id = ?", itemID, auditID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrItemNotFound, itemID)
		}
		return nil, err
	}
	item.Status = in.Status
	item.Comment = in.Comment
	if err := s.db.Save(&item).Error; err != nil {
		return nil, fmt.Errorf("Checklistenpunkt konnte nicht gespeichert werden: %w", err)
	}
	return &item, nil
}

type AddFindingInput struct {
	Description string          `json:"description"`
	Severity    models.Severity `json:"severity"`
	Responsible string          `json:"responsible"`
	TargetDate  time.Time       `json:"target_date"`
}

// AddFinding: Feststellungen nur während der Durchführung.
func (s *Service) AddFinding(auditID uint, in AddFindingInput) (*models.AuditFinding, error) {
	var audit models.Audit
	if err := s.db.First(&audit, "id = ?", auditID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrAuditNotFound, auditID)
		}
		return nil, err
	}
	if audit.Status != models.AuditStatusInProgress {
		return nil, fmt.Errorf("Feststellungen können nur bei laufendem Audit erfasst werden (Status: %s)", audit.Status)
	}
	if in.Description == "" {
		return nil, fmt.Errorf("Beschreibung erforderlich")
	}
	if in.TargetDate.IsZero() {
		return nil, fmt.Errorf("Zieldatum erforderlich")
	}

	finding := models.AuditFinding{
		AuditID:     auditID,
		Description: in.Description,
		Severity:    in.Severity,
		Responsible: in.Responsible,
		TargetDate:  in.TargetDate,
		Status:      models.FindingStatusOpen,
	}
	if err := s.db.Create(&finding).Error; err != nil {
		return nil, fmt.Errorf("Feststellung konnte nicht gespeichert werden: %w", err)
	}
	return &finding, nil
}

type UpdateFindingInput struct {
	Status      *models.FindingStatus `json:"status"`
	Responsible *string               `json:"responsible"`
	TargetDate  *time.Time            `json:"target_date"`
}

func (s *Service) UpdateFinding(id uint, in UpdateFindingInput) (*models.AuditFinding, error) {
	var finding models.AuditFinding
	if err := s.db.First(&finding, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrFindingNotFound, id)
		}
		return nil, err
	}
	if in.Responsible != nil {
		finding.Responsible = *in.Responsible
	}
	if in.TargetDate != nil {
		finding.TargetDate = *in.TargetDate
	}
	if in.Status != nil {
		finding.Status = *in.Status
		if *in.Status == models.FindingStatusClosed {
			now := s.now()
			finding.ClosedAt = &now
		}
	}
	if err := s.db.Save(&finding).Error; err != nil {
		return nil, fmt.Errorf("Feststellung konnte nicht aktualisiert werden: %w", err)
	}
	return &finding, nil
}

// promoteOverdueFindings stuft offene Feststellungen mit überschrittenem
// Zieldatum beim Lesen auf overdue zurück (kein Hintergrundprozess).
func (s *Service) promoteOverdueFindings(findings []models.AuditFinding) error {
	now := s.now()
	for i := range findings {
		f := &findings[i]
		if f.Status != models.FindingStatusOpen && f.Status != models.FindingStatusInProgress {
			continue
		}
		if !f.TargetDate.Before(now) {
			continue
		}
		f.Status = models.FindingStatusOverdue
		if err := s.db.Model(&models.AuditFinding{}).Where("id = ?", f.ID).
			Update("status", models.FindingStatusOverdue).Error; err != nil {
			return err
		}
		s.log.Warn("Feststellung überfällig",
			zap.Uint("finding_id", f.ID),
			zap.Time("target_date", f.TargetDate))
	}
	return nil
}

// ComplianceScore: Anteil konformer Punkte in Prozent, gerundet,
// bezogen auf alle Checklistenpunkte.
func (s *Service) ComplianceScore(auditID uint) (int, error) {
	var items []models.AuditChecklistItem
	if err := s.db.Where("audit_id = ?", auditID).Find(&items).Error; err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w (ID %d)", ErrAuditNotFound, auditID)
	}

	conform := 0
	for _, item := range items {
		if item.Status == models.ChecklistConform {
			conform++
		}
	}
	return int(math.Round(100 * float64(conform) / float64(len(items)))), nil
}

// nextNumber: laufende Auditnummer je Jahr, z.B. "AUD-2026-03"
func (s *Service) nextNumber() (string, error) {
	year := s.now().Year()
	prefix := fmt.Sprintf("AUD-%d-", year)
	var count int64
	if err := s.db.Model(&models.Audit{}).Where("number LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%02d", prefix, count+1), nil
}
