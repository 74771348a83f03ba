package config

import (
	"log"
	"os"
)

type Config struct {
	HTTPPort       string
	DatabaseDriver string // "postgres" oder "sqlite"
	DatabaseDSN    string
	JWTSecret      string
	CORSOrigins    string
	LogLevel       string // zap-Level: debug, info, warn, error
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=estrich_qm port=5432 sslmode=disable"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	// Produktions-Sicherheitsprüfungen
	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET ist nicht gesetzt! Für den Betrieb zwingend erforderlich.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET muss mindestens 32 Zeichen lang sein!")
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		log.Fatalf("[FATAL] DATABASE_DRIVER muss 'postgres' oder 'sqlite' sein, nicht %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDSN == "host=localhost user=postgres password=postgres dbname=estrich_qm port=5432 sslmode=disable" {
		log.Println("[WARN] DATABASE_DSN nutzt den Standardwert, für den Betrieb eigene Postgres-Verbindung setzen.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS nutzt den Standardwert, für den Betrieb eigene Domain setzen.")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
