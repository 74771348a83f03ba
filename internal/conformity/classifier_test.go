package conformity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"estrich-qm-backend/internal/models"
)

func TestClassifySeverityThresholds(t *testing.T) {
	tests := []struct {
		name     string
		min      float64
		target   float64
		severity models.Severity
	}{
		{"über 20 Prozent Abweichung", 19.0, 25.0, models.SeverityCritical},
		{"über 10 Prozent Abweichung", 22.0, 25.0, models.SeverityMajor},
		{"unter 10 Prozent Abweichung", 24.0, 25.0, models.SeverityMinor},
		{"exakt 10 Prozent bleibt minor", 22.5, 25.0, models.SeverityMinor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(&Result{MinValue: tt.min}, tt.target)
			assert.Equal(t, tt.severity, c.Severity)
		})
	}
}

func TestClassifyForcesContainment(t *testing.T) {
	c := Classify(&Result{MinValue: 24.9}, 25.0)
	assert.True(t, c.ImmediateActionRequired)
	assert.True(t, c.BatchBlocked)
	assert.True(t, c.MarkingBlocked)
	assert.Equal(t, models.DispositionQuarantine, c.Disposition)
}

func TestClassifyZeroTarget(t *testing.T) {
	c := Classify(&Result{MinValue: -1}, 0)
	assert.Equal(t, models.SeverityMajor, c.Severity)
}
