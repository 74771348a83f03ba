package models

import "time"

type DeviceStatus string

const (
	DeviceStatusOK          DeviceStatus = "ok"
	DeviceStatusDefect      DeviceStatus = "defect"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
)

// MeasuringDevice: Prüf-/Messgerät der werkseigenen Produktionskontrolle (FPC).
// Messwerte eines Geräts sind nur verwertbar, solange die Kalibrierung gültig ist.
type MeasuringDevice struct {
	ID              uint `gorm:"primaryKey"`
	PlantID         uint `gorm:"index;not null"`
	Plant           Plant
	Name            string       `gorm:"size:100;not null"` // z.B. "Druckprüfpresse 1"
	SerialNumber    string       `gorm:"size:50;uniqueIndex"`
	Status          DeviceStatus `gorm:"size:20;not null;default:ok"`
	LastCalibration *time.Time
	NextCalibration *time.Time // Kalibrierung gültig bis
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
