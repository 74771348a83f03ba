package report

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/conformity"
	"estrich-qm-backend/internal/models"
)

// Service erzeugt das Abweichungsregister als Excel-Arbeitsmappe.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

var registerHeader = []string{
	"Nummer", "Werk", "Typ", "Schweregrad", "Status", "Titel",
	"Merkmal", "Zielklasse", "Modus", "n", "Mittelwert", "s (n-1)",
	"Merkmalswert", "Minimum", "Bewertung", "Disposition", "Entdeckt am", "Entdeckt von",
}

// BuildDeviationRegister baut die Arbeitsmappe für ein Werk (plantID 0 = alle).
// Die Statistikspalten nutzen die Stichproben-Standardabweichung (n-1), wie im
// Prüfbericht üblich; die gespeicherte Bewertung selbst bleibt unberührt.
func (s *Service) BuildDeviationRegister(plantID uint) (*excelize.File, error) {
	query := s.db.Model(&models.Deviation{}).
		Preload("Plant").
		Preload("Measurements")
	if plantID != 0 {
		query = query.Where("plant_id = ?", plantID)
	}

	var devs []models.Deviation
	if err := query.Order("discovered_at DESC").Find(&devs).Error; err != nil {
		return nil, fmt.Errorf("Abweichungen konnten nicht geladen werden: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Abweichungsregister"
	f.SetSheetName("Sheet1", sheet)

	for i, h := range registerHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	f.SetColWidth(sheet, "A", "A", 14)
	f.SetColWidth(sheet, "F", "F", 40)
	f.SetColWidth(sheet, "Q", "R", 16)

	for row, dev := range devs {
		values := make([]float64, len(dev.Measurements))
		for i, m := range dev.Measurements {
			values[i] = m.Value
		}

		var mean, stdDev, charValue float64
		if cv, m, sd, err := conformity.CharacteristicValue(values); err == nil {
			charValue, mean, stdDev = cv, m, sd
		}

		minValue := ""
		if dev.MinValue != nil {
			minValue = fmt.Sprintf("%.2f", *dev.MinValue)
		}
		evaluation := ""
		if dev.EvaluationPassed != nil {
			if *dev.EvaluationPassed {
				evaluation = "bestanden"
			} else {
				evaluation = "nicht bestanden"
			}
		}

		cells := []any{
			dev.Number,
			dev.Plant.Name,
			string(dev.Type),
			string(dev.Severity),
			string(dev.Status),
			dev.Title,
			dev.AffectedCharacteristic,
			dev.TargetClass,
			string(dev.ConformityMode),
			len(values),
			round2(mean),
			round2(stdDev),
			round2(charValue),
			minValue,
			evaluation,
			string(dev.Disposition),
			dev.DiscoveredAt.Format("2006-01-02"),
			dev.DiscoveredBy,
		}
		for col, v := range cells {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	return f, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
