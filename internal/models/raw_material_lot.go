package models

import "time"

// RawMaterialLot: Rohstoff-Liefercharge (Zement, Zuschlag, Zusatzmittel),
// referenzierbar aus Abweichungen vom Typ incoming_material.
type RawMaterialLot struct {
	ID           uint `gorm:"primaryKey"`
	PlantID      uint `gorm:"index;not null"`
	MaterialName string `gorm:"size:100;not null"` // z.B. "CEM I 42,5 R"
	Supplier     string `gorm:"size:100"`
	LotNumber    string `gorm:"size:50;not null"`
	DeliveredAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
