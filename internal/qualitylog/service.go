package qualitylog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/models"
)

// Service schreibt und liest das Qualitätsprotokoll. Einträge sind
// unveränderlich: kein Update, kein Delete, kein Rückgängigmachen.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

type LogOptions struct {
	PlantID     *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.LogAction
	Description string
	Before      any
	After       any
}

// WriteLog hängt einen Protokolleintrag an. Before/After werden als JSON
// abgelegt; nil wird zum JSON-null (jsonb verträgt keinen Leerstring).
// Ein nicht serialisierbarer Zustand degradiert zu null, wird aber geloggt,
// damit Lücken im Protokoll nachvollziehbar bleiben.
func (s *Service) WriteLog(opts LogOptions) error {
	beforeRaw := s.marshalState("before", opts, opts.Before)
	afterRaw := s.marshalState("after", opts, opts.After)

	entry := models.QualityLog{
		PlantID:     opts.PlantID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  []byte(beforeRaw),
		AfterData:   []byte(afterRaw),
	}

	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("Protokolleintrag konnte nicht gespeichert werden: %w", err)
	}
	return nil
}

func (s *Service) marshalState(which string, opts LogOptions, state any) json.RawMessage {
	if state == nil {
		return json.RawMessage("null")
	}
	b, err := json.Marshal(state)
	if err != nil {
		s.log.Error("Protokollzustand nicht serialisierbar",
			zap.String("state", which),
			zap.String("entity_type", opts.EntityType),
			zap.Uint("entity_id", opts.EntityID),
			zap.Error(err))
		return json.RawMessage("null")
	}
	return b
}

type ListFilters struct {
	PlantID    *uint
	UserID     *uint
	EntityType string
	EntityID   *uint
	From       *time.Time
	To         *time.Time
}

func (s *Service) List(f ListFilters) ([]models.QualityLog, error) {
	query := s.db.Model(&models.QualityLog{})
	if f.PlantID != nil {
		query = query.Where("plant_id = ?", *f.PlantID)
	}
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.EntityType != "" {
		query = query.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != nil {
		query = query.Where("entity_id = ?", *f.EntityID)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}

	var logs []models.QualityLog
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("Protokoll konnte nicht geladen werden: %w", err)
	}
	return logs, nil
}
