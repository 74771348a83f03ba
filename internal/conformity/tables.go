package conformity

import "fmt"

// k-Faktor-Stufentabelle für die statistische Bewertung (§9.2.2).
// Gewählt wird die kleinste Stufe, deren Obergrenze >= n ist; oberhalb von 99
// gilt 1.72. Stufentabelle, keine Interpolation.
var kFactorSteps = []struct {
	maxN int
	k    float64
}{
	{4, 2.63},
	{5, 2.33},
	{6, 2.18},
	{9, 2.00},
	{14, 1.93},
	{19, 1.87},
	{29, 1.83},
	{39, 1.80},
	{59, 1.77},
	{99, 1.75},
}

// KFactor liefert den k-Faktor für den Stichprobenumfang n.
func KFactor(n int) float64 {
	for _, step := range kFactorSteps {
		if n <= step.maxN {
			return step.k
		}
	}
	return 1.72
}

// kA-Tabelle 12: Annahmekonstanten für Audit-Stichprobenpläne. Eigenständiger,
// konservativerer Konstantensatz — nicht mit der k-Stufentabelle oben mischen.
var kaTable = []struct {
	n  int
	ka float64
}{
	{3, 3.37},
	{4, 2.63},
	{5, 2.33},
	{6, 2.18},
	{7, 2.08},
	{8, 2.00},
	{9, 1.95},
	{10, 1.92},
	{15, 1.82},
	{20, 1.76},
	{30, 1.70},
	{40, 1.66},
	{50, 1.64},
	{100, 1.59},
	{200, 1.56},
	{500, 1.54},
	{1000, 1.53},
}

// KAFactor liefert die Annahmekonstante kA für den Stichprobenumfang n.
// Fehlt n in der Tabelle, wird der nächstkleinere tabellierte Umfang gewählt
// (nie aufgerundet — konservative Wahl, keine Interpolation).
func KAFactor(n int) (float64, error) {
	if n < kaTable[0].n {
		return 0, fmt.Errorf("Stichprobenumfang %d unter dem kleinsten tabellierten Wert (%d)", n, kaTable[0].n)
	}
	ka := kaTable[0].ka
	for _, row := range kaTable {
		if row.n > n {
			break
		}
		ka = row.ka
	}
	return ka, nil
}
