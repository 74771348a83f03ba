package models

import "time"

type AuditStatus string

const (
	AuditStatusPlanned    AuditStatus = "planned"
	AuditStatusInProgress AuditStatus = "in_progress"
	AuditStatusCompleted  AuditStatus = "completed"
	AuditStatusClosed     AuditStatus = "closed"
)

type AuditKind string

const (
	AuditKindInternal AuditKind = "internal"
	AuditKindExternal AuditKind = "external" // z.B. notifizierte Stelle
)

// Audit: formelles Audit der werkseigenen Produktionskontrolle
type Audit struct {
	ID          uint `gorm:"primaryKey"`
	PlantID     uint `gorm:"index;not null"`
	Plant       Plant
	Number      string      `gorm:"size:20;not null;uniqueIndex"` // z.B. "AUD-2026-01"
	Kind        AuditKind   `gorm:"size:10;not null;default:internal"`
	Status      AuditStatus `gorm:"size:15;not null;default:planned"`
	Auditor     string      `gorm:"size:100;not null"`
	PlannedDate time.Time   `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	ClosedAt    *time.Time
	Summary     string `gorm:"size:2000"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	ChecklistItems []AuditChecklistItem
	Findings       []AuditFinding
}

type ChecklistItemStatus string

const (
	ChecklistConform       ChecklistItemStatus = "conform"
	ChecklistNonconform    ChecklistItemStatus = "nonconform"
	ChecklistNotApplicable ChecklistItemStatus = "not_applicable"
	ChecklistObservation   ChecklistItemStatus = "observation"
)

// AuditChecklistItem: bei Anlage des Audits statisch aus der Vorlage erzeugt
type AuditChecklistItem struct {
	ID       uint   `gorm:"primaryKey"`
	AuditID  uint   `gorm:"index;not null"`
	Position int    `gorm:"not null"`
	Section  string `gorm:"size:50;not null"`  // Normabschnitt, z.B. "EN 13813 §6.3.2"
	Question string `gorm:"size:500;not null"`
	Status   ChecklistItemStatus `gorm:"size:20"`
	Comment  string              `gorm:"size:1000"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FindingStatus string

const (
	FindingStatusOpen       FindingStatus = "open"
	FindingStatusInProgress FindingStatus = "in_progress"
	FindingStatusClosed     FindingStatus = "closed"
	FindingStatusOverdue    FindingStatus = "overdue"
)

// AuditFinding: Feststellung; wird während in_progress frei hinzugefügt und
// wechselt bei überschrittenem Zieldatum automatisch auf overdue.
type AuditFinding struct {
	ID          uint `gorm:"primaryKey"`
	AuditID     uint `gorm:"index;not null"`
	Description string `gorm:"size:1000;not null"`
	Severity    Severity `gorm:"size:15;not null"`
	Responsible string   `gorm:"size:100"`
	TargetDate  time.Time `gorm:"not null"`
	Status      FindingStatus `gorm:"size:15;not null;default:open"`
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
