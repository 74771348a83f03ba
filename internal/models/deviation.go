package models

import (
	"time"

	"gorm.io/datatypes"
)

type DeviationType string

const (
	DeviationTypeProduct          DeviationType = "product"
	DeviationTypeProcess          DeviationType = "process"
	DeviationTypeIncomingMaterial DeviationType = "incoming_material"
	DeviationTypeDevice           DeviationType = "device"
	DeviationTypeDocumentation    DeviationType = "documentation"
)

type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeverityMajor       Severity = "major"
	SeverityMinor       Severity = "minor"
	SeverityObservation Severity = "observation"
)

type DeviationSource string

const (
	SourceInternalAudit     DeviationSource = "internal_audit"
	SourceExternalAudit     DeviationSource = "external_audit"
	SourceCustomerComplaint DeviationSource = "customer_complaint"
	SourceQualityControl    DeviationSource = "quality_control"
	SourceProduction        DeviationSource = "production"
	SourceFPCTest           DeviationSource = "fpc_test"
	SourceITTTest           DeviationSource = "itt_test"
)

type ConformityMode string

const (
	ConformitySingleValue ConformityMode = "single_value" // EN 13813 §9.2.3: jeder Einzelwert >= Zielwert
	ConformityStatistics  ConformityMode = "statistics"   // EN 13813 §9.2.2: statistische Bewertung mit k-Faktor
)

type DeviationStatus string

const (
	DeviationStatusOpen               DeviationStatus = "open"
	DeviationStatusInvestigation      DeviationStatus = "investigation"
	DeviationStatusCorrectiveAction   DeviationStatus = "corrective_action"
	DeviationStatusEffectivenessCheck DeviationStatus = "effectiveness_check"
	DeviationStatusClosed             DeviationStatus = "closed"
	DeviationStatusRejected           DeviationStatus = "rejected"
)

type Disposition string

const (
	DispositionQuarantine            Disposition = "quarantine"
	DispositionRework                Disposition = "rework"
	DispositionDowngrade             Disposition = "downgrade"
	DispositionScrap                 Disposition = "scrap"
	DispositionReleaseWithConcession Disposition = "release_with_concession"
	DispositionPending               Disposition = "pending"
)

type RiskGrade string

const (
	RiskLow    RiskGrade = "low"
	RiskMedium RiskGrade = "medium"
	RiskHigh   RiskGrade = "high"
)

type RiskLevel string

const (
	RiskLevelAcceptable   RiskLevel = "acceptable"
	RiskLevelTolerable    RiskLevel = "tolerable"
	RiskLevelUnacceptable RiskLevel = "unacceptable"
)

type RootCauseMethod string

const (
	RootCause5Why      RootCauseMethod = "5_why"
	RootCauseFishbone  RootCauseMethod = "fishbone"
	RootCauseFaultTree RootCauseMethod = "fault_tree"
	RootCause8D        RootCauseMethod = "8d"
	RootCauseOther     RootCauseMethod = "other"
)

// Deviation: zentrale Abweichung (Nichtkonformität) nach EN 13813 §6.3.2.2.
// Wird nie physisch gelöscht; Abschluss ist terminal, der Datensatz bleibt
// für die Rückverfolgbarkeit erhalten (10 Jahre Aufbewahrung).
type Deviation struct {
	ID      uint `gorm:"primaryKey"`
	PlantID uint `gorm:"uniqueIndex:ux_deviation_plant_number;not null"`
	Plant   Plant
	// Laufende Nummer, je Werk und Jahr, z.B. "ABW-2026-0007";
	// eindeutig erst zusammen mit dem Werk
	Number string `gorm:"size:20;not null;uniqueIndex:ux_deviation_plant_number"`

	Type     DeviationType   `gorm:"size:20;not null"`
	Severity Severity        `gorm:"size:15"`
	Source   DeviationSource `gorm:"size:25;not null"`

	Title       string `gorm:"size:200;not null"`
	Description string `gorm:"size:2000"`

	// EN-13813-Bezug
	AffectedCharacteristic string         `gorm:"size:10"` // z.B. "C25", "F4"
	TargetClass            string         `gorm:"size:10"` // deklarierte Klasse
	TestStandard           string         `gorm:"size:20"` // z.B. "EN 13892-2"
	ConformityMode         ConformityMode `gorm:"size:15"`

	// Berechnete Konformitätsbewertung (abgeleitet, nicht vom Nutzer gesetzt)
	EvaluationPassed  *bool
	EvaluationDetails string `gorm:"size:1000"`
	Mean              *float64
	StdDev            *float64
	MinValue          *float64
	MaxValue          *float64

	// Optionale Verweise
	RecipeID         *uint `gorm:"index"`
	RecipeVersionID  *uint
	BatchID          *uint `gorm:"index"`
	TestRecordID     *uint
	DeviceID         *uint
	RawMaterialLotID *uint
	ProcessStep      string `gorm:"size:100"`

	// Entdeckung
	DiscoveredAt     time.Time `gorm:"index;not null"`
	DiscoveredBy     string    `gorm:"size:100;not null"`
	DetectionMethod  string    `gorm:"size:100"`
	AffectedQuantity *float64
	QuantityUnit     string `gorm:"size:20"`

	Status DeviationStatus `gorm:"size:25;not null;default:open"`

	// Sofortmaßnahme und Eindämmung
	ImmediateActionRequired    bool
	ImmediateActionDescription string `gorm:"size:1000"`
	ImmediateActionBy          string `gorm:"size:100"`
	ImmediateActionAt          *time.Time
	BatchBlocked               bool
	MarkingBlocked             bool // CE-Kennzeichnung gesperrt
	CustomerInformed           bool
	ProductRecalled            bool

	// Disposition (vor Abschluss zwingend)
	Disposition           Disposition `gorm:"size:30;default:pending"`
	DispositionReason     string      `gorm:"size:500"`
	DispositionDecidedBy  string      `gorm:"size:100"`
	DispositionDecidedAt  *time.Time

	// Ursachenanalyse
	RootCauseMethod     RootCauseMethod `gorm:"size:15"`
	RootCauseAnalysis   datatypes.JSON  // strukturierte Analyse (5-Why-Schritte, Fishbone-Kategorien, ...)
	RootCauseConclusion string          `gorm:"size:2000"`

	// Risikobewertung (gespeichert, nicht automatisch berechnet)
	RiskProbability RiskGrade `gorm:"size:10"`
	RiskImpact      RiskGrade `gorm:"size:10"`
	RiskLevel       RiskLevel `gorm:"size:15"`

	// Folgeprüfungen
	ITTRequired            bool // Erstprüfung erneut erforderlich (Prozessänderung)
	ITTTaskCreated         bool
	SamplingFreqSuggestion string `gorm:"size:200"` // Vorschlag zur Anpassung der Prüfhäufigkeit

	// Unterschriftenkette
	CreatedBy    string `gorm:"size:100;not null"`
	ReviewedBy   string `gorm:"size:100"`
	ReviewedAt   *time.Time
	ApprovedBy   string `gorm:"size:100"`
	ApprovedAt   *time.Time
	ClosedBy     string `gorm:"size:100"`
	ClosedAt     *time.Time
	ClosureNotes string `gorm:"size:1000"`
	FinalOutcome string `gorm:"size:500"` // Ergebnis der finalen Disposition

	CreatedAt time.Time
	UpdatedAt time.Time

	Measurements         []DeviationMeasurement
	CorrectiveActions    []CorrectiveAction
	EffectivenessChecks  []EffectivenessCheck
}

// DeviationMeasurement: einzelner Messwert der zugrunde liegenden Prüfserie
type DeviationMeasurement struct {
	ID          uint `gorm:"primaryKey"`
	DeviationID uint `gorm:"index;not null"`
	// Reihenfolge innerhalb der Serie
	Position   int       `gorm:"not null"`
	Value      float64   `gorm:"not null"`
	SampleDate time.Time `gorm:"not null"`
	AgeDays    *int      // Probenalter in Tagen (z.B. 28-Tage-Druckfestigkeit)
	CreatedAt  time.Time
}
