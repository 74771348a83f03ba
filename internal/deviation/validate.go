package deviation

import (
	"regexp"
	"time"

	"estrich-qm-backend/internal/models"
)

// Benannte Invariantenprüfungen. Bewusst als explizite Funktionen statt eines
// generischen Schema-Baukastens: jede Regel ist einzeln benannt und wird vor
// jedem Persistieren ausgeführt.

var (
	characteristicRe = regexp.MustCompile(`^[A-Za-z]{1,3}\d+(\.\d+)?$`)
	testStandardRe   = regexp.MustCompile(`^EN \d{3,5}(-\d+)?$`)
)

// checkCharacteristicCode: Merkmalscode wie "C25", "F4", "RWA12.5"
func checkCharacteristicCode(code string) error {
	if code == "" {
		return nil
	}
	if !characteristicRe.MatchString(code) {
		return &ValidationError{Field: "affected_characteristic", Reason: "Merkmalscode muss dem Muster Buchstabe(n)+Zahl entsprechen, z.B. C25"}
	}
	return nil
}

// checkTestStandard: Normverweis wie "EN 13892" oder "EN 13892-2"
func checkTestStandard(ref string) error {
	if ref == "" {
		return nil
	}
	if !testStandardRe.MatchString(ref) {
		return &ValidationError{Field: "test_standard", Reason: "Normverweis muss dem Muster 'EN NNNNN(-N)' entsprechen"}
	}
	return nil
}

// checkDateRange: Ende darf nicht vor Beginn liegen
func checkDateRange(field string, start, end time.Time) error {
	if end.Before(start) {
		return &ValidationError{Field: field, Reason: "Enddatum liegt vor dem Beginn"}
	}
	return nil
}

// checkEvaluationInput: Bewertung braucht Messwerte UND Zielklasse
func checkEvaluationInput(in CreateDeviationInput) error {
	if in.ConformityMode == "" {
		return nil
	}
	if in.ConformityMode != models.ConformitySingleValue && in.ConformityMode != models.ConformityStatistics {
		return &ValidationError{Field: "conformity_mode", Reason: "Modus muss single_value oder statistics sein"}
	}
	if len(in.Measurements) == 0 {
		return &ValidationError{Field: "measurements", Reason: "mindestens ein Messwert erforderlich, wenn ein Bewertungsmodus gesetzt ist"}
	}
	if in.TargetClass == "" {
		return &ValidationError{Field: "target_class", Reason: "Zielklasse erforderlich, wenn ein Bewertungsmodus gesetzt ist"}
	}
	return nil
}

// ValidateCreate führt alle Invarianten der Neuanlage aus.
func ValidateCreate(in CreateDeviationInput) error {
	if in.PlantID == 0 {
		return &ValidationError{Field: "plant_id", Reason: "Werk erforderlich"}
	}
	if in.Title == "" {
		return &ValidationError{Field: "title", Reason: "Titel erforderlich"}
	}
	if in.Type == "" {
		return &ValidationError{Field: "type", Reason: "Abweichungstyp erforderlich"}
	}
	if in.Source == "" {
		return &ValidationError{Field: "source", Reason: "Quelle erforderlich"}
	}
	if in.DiscoveredAt.IsZero() {
		return &ValidationError{Field: "discovered_at", Reason: "Entdeckungszeitpunkt erforderlich"}
	}
	if in.DiscoveredBy == "" {
		return &ValidationError{Field: "discovered_by", Reason: "Entdecker erforderlich"}
	}
	if in.CreatedBy == "" {
		return &ValidationError{Field: "created_by", Reason: "Ersteller erforderlich"}
	}
	if err := checkCharacteristicCode(in.AffectedCharacteristic); err != nil {
		return err
	}
	if err := checkTestStandard(in.TestStandard); err != nil {
		return err
	}
	return checkEvaluationInput(in)
}

// ValidateCorrectiveAction prüft die Invarianten einer Korrekturmaßnahme.
func ValidateCorrectiveAction(in CorrectiveActionInput) error {
	if in.Description == "" {
		return &ValidationError{Field: "description", Reason: "Beschreibung erforderlich"}
	}
	if in.Responsible == "" {
		return &ValidationError{Field: "responsible", Reason: "Verantwortlicher erforderlich"}
	}
	if in.PlannedStart.IsZero() || in.PlannedEnd.IsZero() {
		return &ValidationError{Field: "planned_start", Reason: "geplanter Zeitraum erforderlich"}
	}
	if err := checkDateRange("planned_end", in.PlannedStart, in.PlannedEnd); err != nil {
		return err
	}
	if in.ActualStart != nil && in.ActualEnd != nil {
		if err := checkDateRange("actual_end", *in.ActualStart, *in.ActualEnd); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEffectivenessCheck prüft die Invarianten einer geplanten Wirksamkeitsprüfung.
func ValidateEffectivenessCheck(in EffectivenessCheckInput) error {
	if in.Type == "" {
		return &ValidationError{Field: "type", Reason: "Prüfungstyp erforderlich"}
	}
	if in.Method == "" {
		return &ValidationError{Field: "method", Reason: "Prüfmethode erforderlich"}
	}
	if in.SuccessCriteria == "" {
		return &ValidationError{Field: "success_criteria", Reason: "mindestens ein Erfolgskriterium erforderlich"}
	}
	// leer = Modus der Abweichung gilt bei der Durchführung
	if in.ConformityMode != "" &&
		in.ConformityMode != models.ConformitySingleValue &&
		in.ConformityMode != models.ConformityStatistics {
		return &ValidationError{Field: "conformity_mode", Reason: "Modus muss single_value oder statistics sein"}
	}
	if in.PlannedDate.IsZero() {
		return &ValidationError{Field: "planned_date", Reason: "Plandatum erforderlich"}
	}
	return nil
}
