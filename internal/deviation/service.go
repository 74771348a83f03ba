package deviation

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"estrich-qm-backend/internal/conformity"
	"estrich-qm-backend/internal/models"
)

// Service: Lebenszyklus der Abweichung inkl. Konformitätsbewertung,
// Eindämmung und Wirksamkeitsverfolgung. Kein globaler Zustand; Datenbank
// und Logger werden injiziert.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

type MeasurementInput struct {
	Value      float64   `json:"value"`
	SampleDate time.Time `json:"sample_date"`
	AgeDays    *int      `json:"age_days"`
}

type CreateDeviationInput struct {
	PlantID  uint                   `json:"plant_id"`
	Type     models.DeviationType   `json:"type"`
	Severity models.Severity        `json:"severity"` // leer = automatisch bei Fehlschlag
	Source   models.DeviationSource `json:"source"`

	Title       string `json:"title"`
	Description string `json:"description"`

	AffectedCharacteristic string                `json:"affected_characteristic"`
	TargetClass            string                `json:"target_class"`
	TestStandard           string                `json:"test_standard"`
	ConformityMode         models.ConformityMode `json:"conformity_mode"`
	Measurements           []MeasurementInput    `json:"measurements"`

	RecipeID         *uint  `json:"recipe_id"`
	RecipeVersionID  *uint  `json:"recipe_version_id"`
	BatchID          *uint  `json:"batch_id"`
	TestRecordID     *uint  `json:"test_record_id"`
	DeviceID         *uint  `json:"device_id"`
	RawMaterialLotID *uint  `json:"raw_material_lot_id"`
	ProcessStep      string `json:"process_step"`

	DiscoveredAt     time.Time `json:"discovered_at"`
	DiscoveredBy     string    `json:"discovered_by"`
	DetectionMethod  string    `json:"detection_method"`
	AffectedQuantity *float64  `json:"affected_quantity"`
	QuantityUnit     string    `json:"quantity_unit"`

	ImmediateActionRequired    bool   `json:"immediate_action_required"`
	ImmediateActionDescription string `json:"immediate_action_description"`

	CreatedBy string `json:"created_by"`
}

type UpdateDeviationInput struct {
	Status   *models.DeviationStatus `json:"status"`
	Severity *models.Severity        `json:"severity"`

	Description *string `json:"description"`

	// nil = Messreihe unverändert; sonst vollständiger Ersatz mit Neubewertung
	Measurements []MeasurementInput `json:"measurements"`

	Disposition          *models.Disposition `json:"disposition"`
	DispositionReason    *string             `json:"disposition_reason"`
	DispositionDecidedBy *string             `json:"disposition_decided_by"`

	RootCauseMethod     *models.RootCauseMethod `json:"root_cause_method"`
	RootCauseAnalysis   datatypes.JSON          `json:"root_cause_analysis"`
	RootCauseConclusion *string                 `json:"root_cause_conclusion"`

	RiskProbability *models.RiskGrade `json:"risk_probability"`
	RiskImpact      *models.RiskGrade `json:"risk_impact"`
	RiskLevel       *models.RiskLevel `json:"risk_level"`

	ImmediateActionDescription *string `json:"immediate_action_description"`
	ImmediateActionBy          *string `json:"immediate_action_by"`
	CustomerInformed           *bool   `json:"customer_informed"`
	ProductRecalled            *bool   `json:"product_recalled"`

	ITTTaskCreated         *bool   `json:"itt_task_created"`
	SamplingFreqSuggestion *string `json:"sampling_freq_suggestion"`

	ReviewedBy   *string `json:"reviewed_by"`
	ApprovedBy   *string `json:"approved_by"`
	ClosedBy     *string `json:"closed_by"`
	ClosureNotes *string `json:"closure_notes"`
	FinalOutcome *string `json:"final_outcome"`
}

type ListFilters struct {
	PlantID        *uint
	Status         models.DeviationStatus
	Severity       models.Severity
	Type           models.DeviationType
	RecipeID       *uint
	Characteristic string
	DiscoveredFrom *time.Time
	DiscoveredTo   *time.Time
}

// CreateDeviation legt eine Abweichung an und führt, wenn Messwerte, Modus und
// Zielklasse vorliegen, sofort die Konformitätsbewertung durch. Bei Fehlschlag
// werden Eindämmung erzwungen, die drei Standard-Wirksamkeitsprüfungen
// terminiert und ggf. die Charge gesperrt; abschließend läuft die Suche nach
// einem systemischen Problem.
func (s *Service) CreateDeviation(in CreateDeviationInput) (*models.Deviation, error) {
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}

	// Kalibriersperre: Messwerte eines referenzierten Geräts sind nur mit
	// gültiger Kalibrierung verwertbar (Vorbedingung im Service, nicht nur im UI)
	if in.DeviceID != nil {
		calibrated, err := s.IsDeviceCalibrated(*in.DeviceID)
		if err != nil {
			return nil, err
		}
		if !calibrated {
			return nil, fmt.Errorf("%w (Gerät %d)", ErrDeviceNotCalibrated, *in.DeviceID)
		}
	}

	number, err := s.nextNumber(in.PlantID)
	if err != nil {
		return nil, err
	}

	dev := models.Deviation{
		PlantID:                    in.PlantID,
		Number:                     number,
		Type:                       in.Type,
		Severity:                   in.Severity,
		Source:                     in.Source,
		Title:                      in.Title,
		Description:                in.Description,
		AffectedCharacteristic:     in.AffectedCharacteristic,
		TargetClass:                in.TargetClass,
		TestStandard:               in.TestStandard,
		ConformityMode:             in.ConformityMode,
		RecipeID:                   in.RecipeID,
		RecipeVersionID:            in.RecipeVersionID,
		BatchID:                    in.BatchID,
		TestRecordID:               in.TestRecordID,
		DeviceID:                   in.DeviceID,
		RawMaterialLotID:           in.RawMaterialLotID,
		ProcessStep:                in.ProcessStep,
		DiscoveredAt:               in.DiscoveredAt,
		DiscoveredBy:               in.DiscoveredBy,
		DetectionMethod:            in.DetectionMethod,
		AffectedQuantity:           in.AffectedQuantity,
		QuantityUnit:               in.QuantityUnit,
		Status:                     models.DeviationStatusOpen,
		Disposition:                models.DispositionPending,
		ImmediateActionRequired:    in.ImmediateActionRequired,
		ImmediateActionDescription: in.ImmediateActionDescription,
		CreatedBy:                  in.CreatedBy,
	}
	for i, m := range in.Measurements {
		dev.Measurements = append(dev.Measurements, models.DeviationMeasurement{
			Position:   i + 1,
			Value:      m.Value,
			SampleDate: m.SampleDate,
			AgeDays:    m.AgeDays,
		})
	}

	evaluated, failed, err := s.applyEvaluation(&dev, in.Measurements, in.Severity == "")
	if err != nil {
		return nil, err
	}

	if err := s.db.Create(&dev).Error; err != nil {
		return nil, fmt.Errorf("Abweichung konnte nicht gespeichert werden: %w", err)
	}
	s.log.Info("Abweichung angelegt",
		zap.String("number", dev.Number),
		zap.String("type", string(dev.Type)),
		zap.Bool("evaluated", evaluated),
		zap.Bool("failed", failed))

	// Folgeschritte laufen nach dem Anlegen einzeln; ein Teilausfall lässt die
	// Abweichung selbst bestehen (bewusst keine übergreifende Transaktion)
	if failed {
		if err := s.scheduleDefaultChecks(&dev); err != nil {
			return nil, err
		}
		if dev.BatchID != nil && dev.BatchBlocked {
			if err := s.BlockBatch(*dev.BatchID, dev.Number); err != nil {
				return nil, err
			}
		}
	}

	if err := s.flagSystemicIssue(&dev); err != nil {
		return nil, err
	}

	return &dev, nil
}

// applyEvaluation führt die Bewertung aus und schreibt die abgeleiteten Felder.
// autoClassify steuert, ob der Schweregrad bei Fehlschlag automatisch gesetzt
// wird (nur wenn keiner explizit übergeben wurde).
func (s *Service) applyEvaluation(dev *models.Deviation, measurements []MeasurementInput, autoClassify bool) (evaluated, failed bool, err error) {
	if len(measurements) == 0 || dev.ConformityMode == "" || dev.TargetClass == "" {
		return false, false, nil
	}

	target, err := conformity.ParseClassTarget(dev.TargetClass)
	if err != nil {
		return false, false, &ValidationError{Field: "target_class", Reason: err.Error()}
	}
	values := make([]float64, len(measurements))
	for i, m := range measurements {
		values[i] = m.Value
	}

	res, err := conformity.Evaluate(dev.ConformityMode, values, target, 0)
	if err != nil {
		return false, false, err
	}

	passed := res.Passed
	dev.EvaluationPassed = &passed
	dev.EvaluationDetails = res.Details
	dev.Mean = &res.Mean
	dev.StdDev = &res.StdDev
	dev.MinValue = &res.MinValue
	dev.MaxValue = &res.MaxValue

	if !res.Passed {
		cls := conformity.Classify(res, target)
		if autoClassify && dev.Severity == "" {
			dev.Severity = cls.Severity
		}
		// Sicherheitsgerichtete Vorgaben: Eindämmung wird bei jedem
		// Fehlschlag erzwungen, Disposition nur belegt, wenn noch offen
		dev.ImmediateActionRequired = true
		dev.BatchBlocked = true
		dev.MarkingBlocked = true
		if dev.Disposition == "" || dev.Disposition == models.DispositionPending {
			dev.Disposition = cls.Disposition
		}
	}

	return true, !res.Passed, nil
}

// UpdateDeviation wendet Feldänderungen an, bewertet bei neuer Messreihe neu
// und prüft Statuswechsel vor dem Schreiben. Alle Abschluss-Gates werden vor
// jedem Persistieren geprüft; ein verletztes Gate verwirft das gesamte Update.
func (s *Service) UpdateDeviation(id uint, in UpdateDeviationInput) (*models.Deviation, error) {
	var dev models.Deviation
	if err := s.db.Preload("Measurements").First(&dev, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrDeviationNotFound, id)
		}
		return nil, err
	}

	applyUpdate(&dev, in)

	replaceMeasurements := in.Measurements != nil
	if replaceMeasurements {
		if len(in.Measurements) == 0 {
			return nil, &ValidationError{Field: "measurements", Reason: "Messreihe darf nicht leer ersetzt werden"}
		}
		dev.Measurements = nil
		for i, m := range in.Measurements {
			dev.Measurements = append(dev.Measurements, models.DeviationMeasurement{
				DeviationID: dev.ID,
				Position:    i + 1,
				Value:       m.Value,
				SampleDate:  m.SampleDate,
				AgeDays:     m.AgeDays,
			})
		}
		if _, _, err := s.applyEvaluation(&dev, in.Measurements, false); err != nil {
			return nil, err
		}
	}

	if in.Status != nil && *in.Status != dev.Status {
		if err := ValidateTransition(dev.Status, *in.Status); err != nil {
			return nil, err
		}
		if *in.Status == models.DeviationStatusClosed {
			if err := s.checkClosureGates(&dev); err != nil {
				return nil, err
			}
			now := s.now()
			dev.ClosedAt = &now
			if dev.ClosedBy == "" {
				dev.ClosedBy = dev.ApprovedBy
			}
		}
		s.log.Info("Statuswechsel",
			zap.String("number", dev.Number),
			zap.String("from", string(dev.Status)),
			zap.String("to", string(*in.Status)))
		dev.Status = *in.Status
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if replaceMeasurements {
			if err := tx.Where("deviation_id = ?", dev.ID).Delete(&models.DeviationMeasurement{}).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: replaceMeasurements}).Save(&dev).Error
	})
	if err != nil {
		return nil, fmt.Errorf("Abweichung konnte nicht aktualisiert werden: %w", err)
	}
	return &dev, nil
}

// checkClosureGates: drei unabhängige harte Voraussetzungen für status=closed
func (s *Service) checkClosureGates(dev *models.Deviation) error {
	if dev.Disposition == "" || dev.Disposition == models.DispositionPending {
		return &ClosureGateError{Gate: "disposition", Reason: "vor dem Abschluss muss eine Disposition festgelegt sein"}
	}
	if dev.ApprovedBy == "" {
		return &ClosureGateError{Gate: "approval", Reason: "vor dem Abschluss muss ein Freigebender eingetragen sein"}
	}
	pending, err := s.GetPendingEffectivenessChecks(dev.ID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return &ClosureGateError{Gate: "effectiveness_checks", Reason: fmt.Sprintf("%d Wirksamkeitsprüfung(en) noch nicht durchgeführt", len(pending))}
	}
	return nil
}

func applyUpdate(dev *models.Deviation, in UpdateDeviationInput) {
	if in.Severity != nil {
		dev.Severity = *in.Severity
	}
	if in.Description != nil {
		dev.Description = *in.Description
	}
	if in.Disposition != nil {
		dev.Disposition = *in.Disposition
	}
	if in.DispositionReason != nil {
		dev.DispositionReason = *in.DispositionReason
	}
	if in.DispositionDecidedBy != nil {
		dev.DispositionDecidedBy = *in.DispositionDecidedBy
		now := time.Now()
		dev.DispositionDecidedAt = &now
	}
	if in.RootCauseMethod != nil {
		dev.RootCauseMethod = *in.RootCauseMethod
	}
	if in.RootCauseAnalysis != nil {
		dev.RootCauseAnalysis = in.RootCauseAnalysis
	}
	if in.RootCauseConclusion != nil {
		dev.RootCauseConclusion = *in.RootCauseConclusion
	}
	if in.RiskProbability != nil {
		dev.RiskProbability = *in.RiskProbability
	}
	if in.RiskImpact != nil {
		dev.RiskImpact = *in.RiskImpact
	}
	if in.RiskLevel != nil {
		dev.RiskLevel = *in.RiskLevel
	}
	if in.ImmediateActionDescription != nil {
		dev.ImmediateActionDescription = *in.ImmediateActionDescription
	}
	if in.ImmediateActionBy != nil {
		dev.ImmediateActionBy = *in.ImmediateActionBy
		now := time.Now()
		dev.ImmediateActionAt = &now
	}
	if in.CustomerInformed != nil {
		dev.CustomerInformed = *in.CustomerInformed
	}
	if in.ProductRecalled != nil {
		dev.ProductRecalled = *in.ProductRecalled
	}
	if in.ITTTaskCreated != nil {
		dev.ITTTaskCreated = *in.ITTTaskCreated
	}
	if in.SamplingFreqSuggestion != nil {
		dev.SamplingFreqSuggestion = *in.SamplingFreqSuggestion
	}
	if in.ReviewedBy != nil {
		dev.ReviewedBy = *in.ReviewedBy
		now := time.Now()
		dev.ReviewedAt = &now
	}
	if in.ApprovedBy != nil {
		dev.ApprovedBy = *in.ApprovedBy
		now := time.Now()
		dev.ApprovedAt = &now
	}
	if in.ClosedBy != nil {
		dev.ClosedBy = *in.ClosedBy
	}
	if in.ClosureNotes != nil {
		dev.ClosureNotes = *in.ClosureNotes
	}
	if in.FinalOutcome != nil {
		dev.FinalOutcome = *in.FinalOutcome
	}
}

func (s *Service) GetDeviation(id uint) (*models.Deviation, error) {
	var dev models.Deviation
	err := s.db.
		Preload("Measurements").
		Preload("CorrectiveActions").
		Preload("EffectivenessChecks").
		First(&dev, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w (ID %d)", ErrDeviationNotFound, id)
		}
		return nil, err
	}
	return &dev, nil
}

func (s *Service) ListDeviations(f ListFilters) ([]models.Deviation, error) {
	query := s.db.Model(&models.Deviation{})
	if f.PlantID != nil {
		query = query.Where("plant_id = ?", *f.PlantID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.RecipeID != nil {
		query = query.Where("recipe_id = ?", *f.RecipeID)
	}
	if f.Characteristic != "" {
		query = query.Where("affected_characteristic = ?", f.Characteristic)
	}
	if f.DiscoveredFrom != nil {
		query = query.Where("discovered_at >= ?", *f.DiscoveredFrom)
	}
	if f.DiscoveredTo != nil {
		query = query.Where("discovered_at <= ?", *f.DiscoveredTo)
	}

	var devs []models.Deviation
	if err := query.Order("discovered_at DESC, id DESC").Find(&devs).Error; err != nil {
		return nil, fmt.Errorf("Abweichungen konnten nicht geladen werden: %w", err)
	}
	return devs, nil
}

// IsDeviceCalibrated: wiederverwendbare reine Prüfung der Kalibriergültigkeit
// (Status ok UND nächster Kalibriertermin in der Zukunft).
func (s *Service) IsDeviceCalibrated(deviceID uint) (bool, error) {
	var device models.MeasuringDevice
	if err := s.db.First(&device, "id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w (ID %d)", ErrDeviceNotFound, deviceID)
		}
		return false, err
	}
	if device.Status != models.DeviceStatusOK {
		return false, nil
	}
	if device.NextCalibration == nil || !device.NextCalibration.After(s.now()) {
		return false, nil
	}
	return true, nil
}

// BlockBatch sperrt die Charge mit Verweis auf die Abweichungsnummer.
// Idempotent: eine bereits gesperrte Charge bleibt unverändert, kein Fehler.
func (s *Service) BlockBatch(batchID uint, deviationNumber string) error {
	var batch models.Batch
	if err := s.db.First(&batch, "id = ?", batchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w (ID %d)", ErrBatchNotFound, batchID)
		}
		return err
	}
	if batch.Status == models.BatchStatusQuarantined {
		return nil
	}
	batch.Status = models.BatchStatusQuarantined
	batch.Note = fmt.Sprintf("Gesperrt wegen Abweichung %s", deviationNumber)
	if err := s.db.Save(&batch).Error; err != nil {
		return fmt.Errorf("Charge konnte nicht gesperrt werden: %w", err)
	}
	s.log.Warn("Charge gesperrt",
		zap.Uint("batch_id", batchID),
		zap.String("deviation", deviationNumber))
	return nil
}

// flagSystemicIssue sucht ähnliche Abweichungen (gleiches Merkmal, gleiche
// Rezeptur, letzte 180 Tage, ohne die neue selbst). Mehr als zwei Treffer:
// Schweregrad wird auf mindestens major angehoben (critical bleibt critical)
// und ein Hinweis an die Ursachen-Schlussfolgerung angehängt.
func (s *Service) flagSystemicIssue(dev *models.Deviation) error {
	if dev.AffectedCharacteristic == "" || dev.RecipeID == nil {
		return nil
	}
	cutoff := s.now().AddDate(0, 0, -180)
	var count int64
	err := s.db.Model(&models.Deviation{}).
		Where("affected_characteristic = ? AND recipe_id = ? AND discovered_at >= ? AND id <> ?",
			dev.AffectedCharacteristic, *dev.RecipeID, cutoff, dev.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count <= 2 {
		return nil
	}

	if dev.Severity != models.SeverityCritical {
		dev.Severity = models.SeverityMajor
	}
	note := fmt.Sprintf("SYSTEMISCHES PROBLEM: %d weitere Abweichungen zum Merkmal %s an dieser Rezeptur in den letzten 180 Tagen. Prozessursache prüfen, ggf. Rezeptur sperren.",
		count, dev.AffectedCharacteristic)
	if dev.RootCauseConclusion != "" {
		dev.RootCauseConclusion += "\n" + note
	} else {
		dev.RootCauseConclusion = note
	}
	s.log.Warn("Systemisches Problem erkannt",
		zap.String("number", dev.Number),
		zap.String("characteristic", dev.AffectedCharacteristic),
		zap.Int64("related", count))
	return s.db.Save(dev).Error
}

// nextNumber: laufende Abweichungsnummer je Werk und Jahr, z.B. "ABW-2026-0007"
func (s *Service) nextNumber(plantID uint) (string, error) {
	year := s.now().Year()
	prefix := fmt.Sprintf("ABW-%d-", year)
	var count int64
	if err := s.db.Model(&models.Deviation{}).
		Where("plant_id = ? AND number LIKE ?", plantID, prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}
