package deviation

import "estrich-qm-backend/internal/models"

// Gerichteter Lebenszyklus-Graph der Abweichung. closed und rejected sind
// terminal; jeder Übergang außerhalb dieser Tabelle ist ein Fehler.
var transitions = map[models.DeviationStatus][]models.DeviationStatus{
	models.DeviationStatusOpen: {
		models.DeviationStatusInvestigation,
		models.DeviationStatusRejected,
	},
	models.DeviationStatusInvestigation: {
		models.DeviationStatusCorrectiveAction,
		models.DeviationStatusClosed,
		models.DeviationStatusRejected,
	},
	models.DeviationStatusCorrectiveAction: {
		models.DeviationStatusEffectivenessCheck,
		models.DeviationStatusClosed,
	},
	models.DeviationStatusEffectivenessCheck: {
		models.DeviationStatusCorrectiveAction,
		models.DeviationStatusClosed,
	},
	models.DeviationStatusClosed:   {},
	models.DeviationStatusRejected: {},
}

// ValidateTransition prüft einen Statuswechsel gegen den Graphen.
// Muss vor jedem Persistieren eines Statuswechsels aufgerufen werden.
func ValidateTransition(from, to models.DeviationStatus) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}
