package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/config"
	"estrich-qm-backend/internal/models"
)

// Connect öffnet die Datenbank und führt die Schema-Migration aus.
// sqlite dient Entwicklung und Tests, postgres dem Betrieb.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.DatabaseDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("Datenbankverbindung fehlgeschlagen: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate legt alle Tabellen an bzw. gleicht sie ab.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Plant{},
		&models.User{},
		&models.Recipe{},
		&models.RecipeVersion{},
		&models.Batch{},
		&models.MeasuringDevice{},
		&models.RawMaterialLot{},
		&models.TestRecord{},
		&models.Deviation{},
		&models.DeviationMeasurement{},
		&models.CorrectiveAction{},
		&models.EffectivenessCheck{},
		&models.Audit{},
		&models.AuditChecklistItem{},
		&models.AuditFinding{},
		&models.QualityLog{},
	)
	if err != nil {
		return fmt.Errorf("AutoMigrate fehlgeschlagen: %w", err)
	}
	return nil
}
