package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New baut den Prozess-Logger. Level aus der Konfiguration, unbekannte
// Werte fallen auf info zurück.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
