package models

import "time"

type TestRecordKind string

const (
	TestRecordKindFPC TestRecordKind = "fpc" // laufende werkseigene Produktionskontrolle
	TestRecordKindITT TestRecordKind = "itt" // Erstprüfung
)

// TestRecord: Prüfprotokoll aus Labor bzw. FPC, referenzierbar aus Abweichungen.
type TestRecord struct {
	ID             uint `gorm:"primaryKey"`
	PlantID        uint `gorm:"index;not null"`
	BatchID        *uint
	RecipeID       uint           `gorm:"index;not null"`
	Kind           TestRecordKind `gorm:"size:10;not null;default:fpc"`
	Characteristic string         `gorm:"size:10;not null"` // geprüftes Merkmal, z.B. "C25"
	TestStandard   string         `gorm:"size:20"`          // z.B. "EN 13892-2"
	TestedAt       time.Time      `gorm:"index;not null"`
	TestedBy       string         `gorm:"size:100"`
	Result         string         `gorm:"size:500"` // Kurzzusammenfassung
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
