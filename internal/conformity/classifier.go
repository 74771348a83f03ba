package conformity

import (
	"math"

	"estrich-qm-backend/internal/models"
)

// Classification: automatisch abgeleitete Einstufung einer fehlgeschlagenen
// Bewertung. Die Eindämmungs-Flags werden bei jedem Fehlschlag erzwungen —
// unklare Fehlerursache darf Produkt nie ungesperrt lassen.
type Classification struct {
	Severity                models.Severity
	ImmediateActionRequired bool
	BatchBlocked            bool
	MarkingBlocked          bool
	Disposition             models.Disposition
}

// Classify leitet Schweregrad und Eindämmung aus einem fehlgeschlagenen
// Bewertungsergebnis ab. Schweregrad über die relative Abweichung des
// schlechtesten Einzelwerts: >20 % critical, >10 % major, sonst minor.
func Classify(res *Result, target float64) Classification {
	severity := models.SeverityMinor
	if target != 0 {
		relDev := math.Abs(res.MinValue-target) / math.Abs(target)
		switch {
		case relDev > 0.20:
			severity = models.SeverityCritical
		case relDev > 0.10:
			severity = models.SeverityMajor
		}
	} else {
		// Zielwert 0: relative Abweichung nicht definierbar, vorsichtshalber major
		severity = models.SeverityMajor
	}

	return Classification{
		Severity:                severity,
		ImmediateActionRequired: true,
		BatchBlocked:            true,
		MarkingBlocked:          true,
		Disposition:             models.DispositionQuarantine,
	}
}
