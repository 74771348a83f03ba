package models

import (
	"time"

	"gorm.io/datatypes"
)

type CheckType string

const (
	CheckTypeImmediate CheckType = "immediate"  // +3 Tage
	CheckTypeShortTerm CheckType = "short_term" // +14 Tage
	CheckTypeLongTerm  CheckType = "long_term"  // +90 Tage
)

type CheckMethod string

const (
	CheckMethodAudit            CheckMethod = "audit"
	CheckMethodTest             CheckMethod = "test"
	CheckMethodMeasurement      CheckMethod = "measurement"
	CheckMethodObservation      CheckMethod = "observation"
	CheckMethodDocumentReview   CheckMethod = "document_review"
	CheckMethodCustomerFeedback CheckMethod = "customer_feedback"
	CheckMethodTrendAnalysis    CheckMethod = "trend_analysis"
)

type EffectivenessRating string

const (
	RatingEffective          EffectivenessRating = "effective"
	RatingPartiallyEffective EffectivenessRating = "partially_effective"
	RatingNotEffective       EffectivenessRating = "not_effective"
)

// EffectivenessCheck: Wirksamkeitsprüfung zu genau einer Abweichung (EN 13813 §6.3.6).
// Drei Prüfungen werden automatisch angelegt (3/14/90 Tage), wenn die
// Erstbewertung der Abweichung nicht bestanden wurde.
type EffectivenessCheck struct {
	ID          uint   `gorm:"primaryKey"`
	DeviationID uint   `gorm:"index;not null"`
	Number      string `gorm:"size:10;not null"` // "EC-<n>", je Abweichung

	Type   CheckType   `gorm:"size:15;not null"`
	Method CheckMethod `gorm:"size:20;not null"`
	// Erfolgskriterien, mindestens eines (newline-getrennt)
	SuccessCriteria string `gorm:"size:1000;not null"`
	// Abweichender Bewertungsmodus; leer = Modus der Abweichung verwenden
	ConformityMode ConformityMode `gorm:"size:15"`

	PlannedDate time.Time `gorm:"index;not null"`

	// Nach Durchführung
	PerformedAt       *time.Time
	PerformedBy       string         `gorm:"size:100"`
	Results           datatypes.JSON // Rohergebnisse inkl. Prüfwerte
	Mean              *float64
	StdDev            *float64
	EvaluationDetails string              `gorm:"size:1000"`
	Rating            EffectivenessRating `gorm:"size:25"`
	FollowUpRequired  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
