package deviation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estrich-qm-backend/internal/models"
)

func TestCheckCharacteristicCode(t *testing.T) {
	valid := []string{"", "C25", "F4", "RWA12.5", "A22", "SH200"}
	for _, code := range valid {
		assert.NoError(t, checkCharacteristicCode(code), code)
	}
	invalid := []string{"25C", "C 25", "c25!", "ABCD12", "C"}
	for _, code := range invalid {
		assert.Error(t, checkCharacteristicCode(code), code)
	}
}

func TestCheckTestStandard(t *testing.T) {
	valid := []string{"", "EN 13892", "EN 13892-2", "EN 13813", "EN 196-1"}
	for _, ref := range valid {
		assert.NoError(t, checkTestStandard(ref), ref)
	}
	invalid := []string{"ISO 9001", "EN13892", "EN 13892-2-1", "DIN EN 13892"}
	for _, ref := range invalid {
		assert.Error(t, checkTestStandard(ref), ref)
	}
}

// Ein unbekannter Bewertungsmodus wird schon bei der Planung abgewiesen,
// nicht erst bei der Durchführung.
func TestValidateEffectivenessCheckMode(t *testing.T) {
	in := EffectivenessCheckInput{
		Type:            models.CheckTypeShortTerm,
		Method:          models.CheckMethodTest,
		SuccessCriteria: "Wiederholungsprüfung erreicht Zielklasse",
		PlannedDate:     time.Now().AddDate(0, 0, 14),
	}
	assert.NoError(t, ValidateEffectivenessCheck(in), "leerer Modus fällt auf den der Abweichung zurück")

	in.ConformityMode = models.ConformitySingleValue
	assert.NoError(t, ValidateEffectivenessCheck(in))
	in.ConformityMode = models.ConformityStatistics
	assert.NoError(t, ValidateEffectivenessCheck(in))

	in.ConformityMode = "fuzzy"
	err := ValidateEffectivenessCheck(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "conformity_mode", verr.Field)
}

func TestValidateTransitionTable(t *testing.T) {
	assert.NoError(t, ValidateTransition("open", "investigation"))
	assert.NoError(t, ValidateTransition("open", "rejected"))
	assert.NoError(t, ValidateTransition("investigation", "corrective_action"))
	assert.NoError(t, ValidateTransition("investigation", "closed"))
	assert.NoError(t, ValidateTransition("corrective_action", "effectiveness_check"))
	assert.NoError(t, ValidateTransition("effectiveness_check", "corrective_action"))
	assert.NoError(t, ValidateTransition("effectiveness_check", "closed"))

	assert.Error(t, ValidateTransition("open", "closed"))
	assert.Error(t, ValidateTransition("open", "effectiveness_check"))
	assert.Error(t, ValidateTransition("corrective_action", "rejected"))
	// terminale Zustände lassen nichts mehr zu
	assert.Error(t, ValidateTransition("closed", "open"))
	assert.Error(t, ValidateTransition("rejected", "investigation"))
	// unbekannter Zustand hat keine Übergänge
	assert.Error(t, ValidateTransition("bogus", "open"))
}
