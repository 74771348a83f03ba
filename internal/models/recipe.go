package models

import "time"

type RecipeStatus string

const (
	RecipeStatusDraft      RecipeStatus = "draft"       // in Entwicklung, noch keine Produktion
	RecipeStatusITTPending RecipeStatus = "itt_pending" // Erstprüfung (ITT) ausstehend
	RecipeStatusActive     RecipeStatus = "active"      // freigegeben für Produktion
	RecipeStatusLocked     RecipeStatus = "locked"      // gesperrt, z.B. nach systemischer Abweichung
)

// Recipe: Estrich-Rezeptur inkl. deklarierter Leistungsklassen nach EN 13813
type Recipe struct {
	ID      uint   `gorm:"primaryKey"`
	PlantID uint   `gorm:"index;not null"`
	Plant   Plant
	Code    string `gorm:"size:50;not null;uniqueIndex"` // z.B. "CT-C25-F4"
	Name    string `gorm:"size:100;not null"`
	// Bindemitteltyp nach EN 13813: CT, CA, MA, AS, SR
	BinderType string `gorm:"size:5;not null"`
	// Deklarierte Klassen, kommagetrennt (z.B. "C25,F4,A12")
	DeclaredClasses string       `gorm:"size:100"`
	Status          RecipeStatus `gorm:"size:20;not null;default:draft"`
	ITTPassed       bool         // Erstprüfung bestanden
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Versions []RecipeVersion
}

// RecipeVersion: Versionsstand einer Rezeptur; jede wesentliche Änderung erzeugt
// eine neue Version und macht ggf. eine erneute Erstprüfung erforderlich.
type RecipeVersion struct {
	ID       uint `gorm:"primaryKey"`
	RecipeID uint `gorm:"index;not null"`
	Version  int  `gorm:"not null"`
	// Zusammensetzung als Freitext/JSON-Auszug, nur zur Rückverfolgung
	Composition string `gorm:"size:2000"`
	ChangeNote  string `gorm:"size:500"`
	CreatedAt   time.Time
}
