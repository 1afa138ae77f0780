package services

import (
	"errors"
	"time"

	"trackdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// View-Modi für die Update-Liste.
const (
	ViewModeActive   = "active"
	ViewModeArchived = "archived"
)

// ProposalFailure beschreibt das Scheitern eines einzelnen Vorschlags beim
// Anwenden; blockiert die übrigen Vorschläge nicht.
type ProposalFailure struct {
	TrackerID uint   `json:"trackerId"`
	RowID     string `json:"rowId"`
	Error     string `json:"error"`
}

// ApplyResult fasst das Anwenden der Vorschläge eines Updates zusammen.
type ApplyResult struct {
	Applied int               `json:"applied"`
	Failed  []ProposalFailure `json:"failed"`
}

// UpdateService ist die State-Machine des Update-Lebenszyklus:
// Active(unprocessed) -> Approved | Rejected (terminal, processed=true),
// dazu die orthogonalen, idempotenten Flags Archived und Viewed.
type UpdateService struct {
	DB       *gorm.DB
	Trackers *TrackerService
	Rows     *RowService
	Logger   *zap.Logger
}

// NewUpdateService erstellt eine neue Instanz des UpdateService.
func NewUpdateService(db *gorm.DB, trackers *TrackerService, rows *RowService, logger *zap.Logger) *UpdateService {
	return &UpdateService{DB: db, Trackers: trackers, Rows: rows, Logger: logger}
}

// List gibt Updates seitenweise zurück; viewMode trennt aktive von
// archivierten Records.
func (s *UpdateService) List(userID, viewMode string, page, pageSize int) ([]models.UpdateRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.DB.Model(&models.UpdateRecord{}).Where("user_id = ?", userID)
	if viewMode == ViewModeArchived {
		query = query.Where("archived_at IS NOT NULL")
	} else {
		query = query.Where("archived_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.UpdateRecord
	err := query.Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	return records, total, err
}

// accessCheck ist der gemeinsame Guard aller Transitionen: Record muss
// existieren und dem Aufrufer gehören; terminale Transitionen verlangen
// zusätzlich processed=false.
func (s *UpdateService) accessCheck(userID string, updateID uint, terminal bool) (*models.UpdateRecord, error) {
	var record models.UpdateRecord
	if err := s.DB.First(&record, updateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUpdateNotFound
		}
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrUnauthorized
	}
	if terminal && record.Processed {
		return nil, ErrAlreadyProcessed
	}
	return &record, nil
}

// Approve wendet alle gespeicherten Vorschläge an und schließt den Record
// terminal als approved ab.
func (s *UpdateService) Approve(userID string, updateID uint) (*ApplyResult, error) {
	record, err := s.accessCheck(userID, updateID, true)
	if err != nil {
		return nil, err
	}
	proposals, err := record.ProposalList()
	if err != nil {
		return nil, err
	}
	return s.finishApproval(userID, record, proposals)
}

// ApproveWithEdits wendet die editierten Vorschläge an. Jeder editierte
// Spaltenwert wird gegen das Ziel-Schema validiert; berührt ein Edit die
// Primary-Key-Spalte, läuft vorher ein Duplicate-Key-Check gegen den Rest
// des Trackers. Einzelne scheiternde Vorschläge blockieren die übrigen
// nicht (gleiche Partial-Failure-Philosophie wie der Bulk-Import).
func (s *UpdateService) ApproveWithEdits(userID string, updateID uint, edited []models.UpdateProposal) (*ApplyResult, error) {
	record, err := s.accessCheck(userID, updateID, true)
	if err != nil {
		return nil, err
	}
	if err := record.SetProposals(edited); err != nil {
		return nil, err
	}
	return s.finishApproval(userID, record, edited)
}

// finishApproval wendet die Vorschläge an und markiert den Record
// terminal: processed + approved + archived.
func (s *UpdateService) finishApproval(userID string, record *models.UpdateRecord, proposals []models.UpdateProposal) (*ApplyResult, error) {
	result := &ApplyResult{}
	for i := range proposals {
		if err := s.applyProposal(userID, &proposals[i]); err != nil {
			result.Failed = append(result.Failed, ProposalFailure{
				TrackerID: proposals[i].TrackerID,
				RowID:     proposals[i].RowID,
				Error:     err.Error(),
			})
			continue
		}
		result.Applied++
	}

	now := time.Now()
	record.Processed = true
	record.Approved = true
	record.ArchivedAt = &now
	if err := s.DB.Save(record).Error; err != nil {
		return nil, err
	}

	s.Logger.Info("Update approved",
		zap.Uint("update_id", record.ID),
		zap.Int("applied", result.Applied),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// applyProposal wendet genau einen Vorschlag über den Upsert-Pfad des
// Row-Stores an.
func (s *UpdateService) applyProposal(userID string, proposal *models.UpdateProposal) error {
	tracker, err := s.Trackers.Get(userID, proposal.TrackerID)
	if err != nil {
		return err
	}

	data := make(map[string]interface{}, len(proposal.ColumnUpdates))
	for _, update := range proposal.ColumnUpdates {
		def, err := tracker.ColumnByKey(update.ColumnKey)
		if err != nil {
			return err
		}
		if def == nil {
			return validationErrorf(update.ColumnKey, "column not in tracker schema")
		}
		value, err := CoerceValue(def, update.ProposedValue)
		if err != nil {
			return err
		}

		// Primary-Key-Edit auf einer bestehenden Zeile: Kollision mit dem
		// Rest des Trackers vorab prüfen.
		if def.Key == tracker.PrimaryKeyColumn && !proposal.IsNewRow {
			newRowID := FormatCellValue(value)
			if newRowID != "" && newRowID != proposal.RowID {
				exists, err := s.Rows.RowExists(tracker.ID, newRowID)
				if err != nil {
					return err
				}
				if exists {
					return ErrDuplicateKey
				}
			}
		}
		data[update.ColumnKey] = value
	}

	rowID := proposal.RowID
	if rowID == "" {
		rowID = FormatCellValue(data[tracker.PrimaryKeyColumn])
	}
	if rowID == "" {
		return validationErrorf(tracker.PrimaryKeyColumn, "proposal has no row identity")
	}

	_, _, err = s.Rows.UpsertRow(userID, tracker, rowID, data)
	return err
}

// Reject schließt den Record terminal als rejected ab, ohne Zeilen
// anzufassen.
func (s *UpdateService) Reject(userID string, updateID uint) error {
	record, err := s.accessCheck(userID, updateID, true)
	if err != nil {
		return err
	}

	now := time.Now()
	record.Processed = true
	record.Rejected = true
	record.ArchivedAt = &now
	return s.DB.Save(record).Error
}

// Archive setzt das orthogonale Archiv-Flag; idempotent, unabhängig vom
// Processed-Status.
func (s *UpdateService) Archive(userID string, updateID uint) error {
	record, err := s.accessCheck(userID, updateID, false)
	if err != nil {
		return err
	}
	if record.ArchivedAt != nil {
		return nil
	}
	now := time.Now()
	record.ArchivedAt = &now
	return s.DB.Save(record).Error
}

// MarkViewed setzt das Viewed-Flag; idempotent.
func (s *UpdateService) MarkViewed(userID string, updateID uint) error {
	record, err := s.accessCheck(userID, updateID, false)
	if err != nil {
		return err
	}
	if record.ViewedAt != nil {
		return nil
	}
	now := time.Now()
	record.ViewedAt = &now
	return s.DB.Save(record).Error
}
