package qualitylog

import (
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

func setupService(t *testing.T) (*Service, *observer.ObservedLogs) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QualityLog{}))

	core, logs := observer.New(zap.ErrorLevel)
	return NewService(db, zap.New(core)), logs
}

func TestWriteLogStoresPayloads(t *testing.T) {
	s, logs := setupService(t)

	require.NoError(t, s.WriteLog(LogOptions{
		UserID:      7,
		UserName:    "A. Brandt",
		EntityType:  "deviation",
		EntityID:    42,
		Action:      models.LogActionCreate,
		Description: "Abweichung angelegt: ABW-2026-0001",
		After:       map[string]string{"number": "ABW-2026-0001"},
	}))

	var entry models.QualityLog
	require.NoError(t, s.db.First(&entry).Error)
	assert.Equal(t, "null", string(entry.BeforeData), "ohne Vorzustand wird JSON-null abgelegt")
	assert.Contains(t, string(entry.AfterData), "ABW-2026-0001")
	assert.Equal(t, 0, logs.Len())
}

// Ein nicht serialisierbarer Zustand darf den Eintrag nicht verhindern,
// muss aber als Fehler im Log auftauchen.
func TestWriteLogReportsMarshalFailure(t *testing.T) {
	s, logs := setupService(t)

	require.NoError(t, s.WriteLog(LogOptions{
		UserID:      7,
		UserName:    "A. Brandt",
		EntityType:  "deviation",
		EntityID:    42,
		Action:      models.LogActionUpdate,
		Description: "Abweichung aktualisiert",
		Before:      make(chan int),
		After:       map[string]string{"status": "investigation"},
	}))

	var entry models.QualityLog
	require.NoError(t, s.db.First(&entry).Error)
	assert.Equal(t, "null", string(entry.BeforeData))
	assert.Contains(t, string(entry.AfterData), "investigation")

	records := logs.FilterMessage("Protokollzustand nicht serialisierbar").All()
	require.Len(t, records, 1)
	assert.Equal(t, "before", records[0].ContextMap()["state"])
}
