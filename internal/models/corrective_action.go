package models

import "time"

type ActionStatus string

const (
	ActionStatusPlanned    ActionStatus = "planned"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusVerified   ActionStatus = "verified"
	ActionStatusCancelled  ActionStatus = "cancelled"
)

type ActionKind string

const (
	ActionKindCorrection      ActionKind = "correction"       // Sofortkorrektur am Produkt
	ActionKindProcedureUpdate ActionKind = "procedure_update" // Verfahrens-/Arbeitsanweisung geändert
	ActionKindSystemChange    ActionKind = "system_change"    // systemweite Änderung (Anlage, Prozess)
	ActionKindTraining        ActionKind = "training"
	ActionKindSupplierAction  ActionKind = "supplier_action"
)

// CorrectiveAction: Korrekturmaßnahme zu genau einer Abweichung (EN 13813 §6.3.4).
// Nummerierung laufend je Abweichung ("CA-1", "CA-2", ...).
type CorrectiveAction struct {
	ID          uint `gorm:"primaryKey"`
	DeviationID uint `gorm:"index;not null"`
	Number      string `gorm:"size:10;not null"` // "CA-<n>", je Abweichung

	Kind        ActionKind `gorm:"size:20;not null;default:correction"`
	Description string     `gorm:"size:1000;not null"`
	Responsible string     `gorm:"size:100;not null"`

	PlannedStart time.Time `gorm:"not null"`
	PlannedEnd   time.Time `gorm:"not null"` // Invariante: PlannedEnd >= PlannedStart
	ActualStart  *time.Time
	ActualEnd    *time.Time // Invariante: ActualEnd >= ActualStart

	Status             ActionStatus `gorm:"size:15;not null;default:planned"`
	VerificationResult string       `gorm:"size:500"`
	VerifiedBy         string       `gorm:"size:100"`
	VerifiedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
