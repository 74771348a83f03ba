package conformity

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"estrich-qm-backend/internal/models"
)

var (
	// ErrNoValues: Vertragsverletzung des Aufrufers, keine wiederherstellbare Bedingung
	ErrNoValues    = errors.New("Konformitätsbewertung ohne Messwerte aufgerufen")
	ErrUnknownMode = errors.New("unbekannter Bewertungsmodus")
)

// Result: Ergebnis einer Konformitätsbewertung nach EN 13813 Abschnitt 9.
// KFactor und LowerLimit sind nur im Modus statistics gesetzt.
type Result struct {
	Passed     bool
	Mean       float64
	StdDev     float64
	MinValue   float64
	MaxValue   float64
	KFactor    float64
	LowerLimit float64
	Details    string
}

// Evaluate bewertet eine Messreihe gegen den Zielwert der deklarierten Klasse.
//
// single_value (§9.2.3): jeder Einzelwert muss den Zielwert erreichen.
// statistics  (§9.2.2): untere Vertrauensgrenze (Mittelwert - k*s) muss den
// Zielwert erreichen UND kein Einzelwert darf mehr als 10 % unter dem Zielwert
// liegen. sampleSize überschreibt len(values) für die k-Faktor-Wahl, 0 = nicht gesetzt.
func Evaluate(mode models.ConformityMode, values []float64, target float64, sampleSize int) (*Result, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	min, max := values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(values))

	switch mode {
	case models.ConformitySingleValue:
		passed := min >= target
		return &Result{
			Passed:   passed,
			Mean:     mean,
			StdDev:   populationStdDev(values, mean),
			MinValue: min,
			MaxValue: max,
			Details: fmt.Sprintf("Einzelwertbetrachtung (EN 13813 §9.2.3): n=%d, min=%.2f, Zielwert=%.2f → %s",
				len(values), min, target, passLabel(passed)),
		}, nil

	case models.ConformityStatistics:
		n := sampleSize
		if n <= 0 {
			n = len(values)
		}
		stdDev := populationStdDev(values, mean)
		k := KFactor(n)
		lowerLimit := mean - k*stdDev
		minThreshold := 0.9 * target
		// Doppelte Schranke: statistische Untergrenze UND 90%-Einzelwertschwelle
		passed := lowerLimit >= target && min >= minThreshold
		return &Result{
			Passed:     passed,
			Mean:       mean,
			StdDev:     stdDev,
			MinValue:   min,
			MaxValue:   max,
			KFactor:    k,
			LowerLimit: lowerLimit,
			Details: fmt.Sprintf("Statistische Bewertung (EN 13813 §9.2.2): n=%d, Mittelwert=%.2f, s=%.2f, k=%.2f, untere Grenze=%.2f, Zielwert=%.2f, min=%.2f, Mindestschwelle=%.2f → %s",
				n, mean, stdDev, k, lowerLimit, target, min, minThreshold, passLabel(passed)),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// populationStdDev: Standardabweichung mit Divisor n (Grundgesamtheit).
// Der Bewertungskern rechnet bewusst mit n; für Prüfberichte existiert daneben
// CharacteristicValue mit Divisor n-1. Nicht zusammenführen.
func populationStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// CharacteristicValue: charakteristischer Wert einer Prüfserie für Prüfberichte
// (untere Vertrauensgrenze mit Stichproben-Standardabweichung, Divisor n-1).
func CharacteristicValue(values []float64) (value, mean, stdDev float64, err error) {
	if len(values) == 0 {
		return 0, 0, 0, ErrNoValues
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	if len(values) > 1 {
		sumSq := 0.0
		for _, v := range values {
			d := v - mean
			sumSq += d * d
		}
		stdDev = math.Sqrt(sumSq / float64(len(values)-1))
	}
	value = mean - KFactor(len(values))*stdDev
	return value, mean, stdDev, nil
}

func passLabel(passed bool) string {
	if passed {
		return "BESTANDEN"
	}
	return "NICHT BESTANDEN"
}

var classTargetRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// ParseClassTarget extrahiert den Zahlenwert aus einer Klassenbezeichnung
// ("C25" → 25, "F4" → 4, "A1fl" → 1).
func ParseClassTarget(class string) (float64, error) {
	m := classTargetRe.FindString(class)
	if m == "" {
		return 0, fmt.Errorf("Klassenbezeichnung %q enthält keinen Zahlenwert", class)
	}
	return strconv.ParseFloat(m, 64)
}
