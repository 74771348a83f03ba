package deviation

import (
	"errors"
	"fmt"

	"estrich-qm-backend/internal/models"
)

var (
	ErrDeviationNotFound = errors.New("Abweichung nicht gefunden")
	ErrActionNotFound    = errors.New("Korrekturmaßnahme nicht gefunden")
	ErrCheckNotFound     = errors.New("Wirksamkeitsprüfung nicht gefunden")
	ErrDeviceNotFound    = errors.New("Messgerät nicht gefunden")
	ErrBatchNotFound     = errors.New("Charge nicht gefunden")

	// ErrDeviceNotCalibrated: Messwerte eines unkalibrierten Geräts sind nicht verwertbar
	ErrDeviceNotCalibrated = errors.New("Messgerät ist nicht gültig kalibriert")
)

// InvalidTransitionError: Statusübergang außerhalb des Lebenszyklus-Graphen
type InvalidTransitionError struct {
	From models.DeviationStatus
	To   models.DeviationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("ungültiger Statusübergang: %s → %s", e.From, e.To)
}

// InvalidActionTransitionError: Statuswechsel einer Korrekturmaßnahme
// außerhalb von planned → in_progress → completed → verified (bzw. cancelled)
type InvalidActionTransitionError struct {
	From models.ActionStatus
	To   models.ActionStatus
}

func (e *InvalidActionTransitionError) Error() string {
	return fmt.Sprintf("ungültiger Maßnahmen-Statusübergang: %s → %s", e.From, e.To)
}

// ClosureGateError: eine der harten Abschlussvoraussetzungen ist nicht erfüllt.
// Gate benennt die verletzte Voraussetzung, damit der Aufrufer sie anzeigen kann.
type ClosureGateError struct {
	Gate   string
	Reason string
}

func (e *ClosureGateError) Error() string {
	return fmt.Sprintf("Abschluss blockiert (%s): %s", e.Gate, e.Reason)
}

// ValidationError: fachliche Eingabeverletzung mit benannter Invariante
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validierung fehlgeschlagen (%s): %s", e.Field, e.Reason)
}
