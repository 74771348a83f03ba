package models

import "time"

type UserRole string

const (
	RoleAdmin           UserRole = "admin"            // QM-Leitung, werksübergreifend
	RoleQualityEngineer UserRole = "quality_engineer" // Qualitätsingenieur eines Werks
	RoleLabTechnician   UserRole = "lab_technician"   // Laborant, erfasst Messwerte
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	PlantID      *uint
	Plant        *Plant
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
