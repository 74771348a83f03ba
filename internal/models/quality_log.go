package models

import (
	"time"

	"gorm.io/datatypes"
)

type LogAction string

const (
	LogActionCreate     LogAction = "create"
	LogActionUpdate     LogAction = "update"
	LogActionTransition LogAction = "transition"
	LogActionEvaluate   LogAction = "evaluate"
)

// QualityLog: unveränderliches Änderungsprotokoll (Rückverfolgbarkeit, 10 Jahre).
// Einträge werden nur angehängt, nie geändert oder gelöscht.
type QualityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PlantID *uint `json:"plant_id"`

	UserID   uint   `json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalisiert

	// Betroffene Entität, z.B. "deviation", "corrective_action", "effectiveness_check", "audit"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      LogAction `gorm:"size:20" json:"action"`
	Description string    `gorm:"size:255" json:"description"`

	// Zustand vor und nach der Änderung
	BeforeData datatypes.JSON `json:"before_data"`
	AfterData  datatypes.JSON `json:"after_data"`
}
