package models

import "time"

type BatchStatus string

const (
	BatchStatusProduced    BatchStatus = "produced"
	BatchStatusReleased    BatchStatus = "released"
	BatchStatusQuarantined BatchStatus = "quarantined" // gesperrt wegen Abweichung
	BatchStatusScrapped    BatchStatus = "scrapped"
)

// Batch: Produktionscharge einer Rezeptur
type Batch struct {
	ID              uint `gorm:"primaryKey"`
	PlantID         uint `gorm:"index;not null"`
	Plant           Plant
	RecipeID        uint `gorm:"index;not null"`
	Recipe          Recipe
	RecipeVersionID *uint
	BatchNumber     string      `gorm:"size:50;not null;uniqueIndex"` // z.B. "CH-2026-0142"
	ProducedAt      time.Time   `gorm:"index;not null"`
	QuantityTons    float64     // produzierte Menge in Tonnen
	Status          BatchStatus `gorm:"size:20;not null;default:produced"`
	Note            string      `gorm:"size:500"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
