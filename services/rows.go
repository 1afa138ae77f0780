package services

import (
	"errors"

	"trackdeck/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RowService ist der Row-Store: eine Zeile pro (Tracker, Primary-Key-Wert),
// Daten lose typisiert als jsonb. Jede Operation ist eine eigene
// Read-Modify-Write-Einheit; Last-Write-Wins auf Dokument-Ebene.
type RowService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRowService erstellt eine neue Instanz des RowService.
func NewRowService(db *gorm.DB, logger *zap.Logger) *RowService {
	return &RowService{DB: db, Logger: logger}
}

// AddRow legt eine neue Zeile an. Schlägt mit ErrDuplicateKey fehl, wenn
// der Primary-Key-Wert im Tracker bereits existiert.
func (s *RowService) AddRow(userID string, tracker *models.Tracker, data map[string]interface{}) (*models.TrackerRow, error) {
	clean, err := NormalizeRowData(tracker, data, false)
	if err != nil {
		return nil, err
	}

	rowID := FormatCellValue(clean[tracker.PrimaryKeyColumn])
	if rowID == "" {
		return nil, validationErrorf(tracker.PrimaryKeyColumn, "primary key value missing")
	}

	exists, err := s.RowExists(tracker.ID, rowID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateKey
	}

	row := &models.TrackerRow{
		TrackerID: tracker.ID,
		RowID:     rowID,
		Data:      datatypes.JSONMap(clean),
		CreatedBy: userID,
		UpdatedBy: userID,
	}
	if err := s.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateRow führt einen Merge aus: nicht angegebene Felder behalten ihre
// bisherigen Werte. Schlägt mit ErrRowNotFound fehl, wenn die Zeile nicht
// existiert, und mit ErrDuplicateKey, wenn eine Primary-Key-Änderung mit
// einer bestehenden Zeile kollidiert.
func (s *RowService) UpdateRow(userID string, tracker *models.Tracker, rowID string, partial map[string]interface{}) (*models.TrackerRow, error) {
	row, err := s.GetRow(tracker.ID, rowID)
	if err != nil {
		return nil, err
	}

	clean, err := NormalizeRowData(tracker, partial, true)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(row.Data)+len(clean))
	for k, v := range row.Data {
		merged[k] = v
	}
	for k, v := range clean {
		merged[k] = v
	}

	newRowID := FormatCellValue(merged[tracker.PrimaryKeyColumn])
	if newRowID == "" {
		return nil, validationErrorf(tracker.PrimaryKeyColumn, "primary key value missing")
	}
	if newRowID != row.RowID {
		exists, err := s.RowExists(tracker.ID, newRowID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateKey
		}
		row.RowID = newRowID
	}

	row.Data = datatypes.JSONMap(merged)
	row.UpdatedBy = userID
	if err := s.DB.Save(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// UpsertRow ist der Apply-Pfad für Vorschläge: Merge wenn die Zeile
// existiert, sonst Insert.
func (s *RowService) UpsertRow(userID string, tracker *models.Tracker, rowID string, data map[string]interface{}) (*models.TrackerRow, bool, error) {
	exists, err := s.RowExists(tracker.ID, rowID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		row, err := s.UpdateRow(userID, tracker, rowID, data)
		return row, false, err
	}

	if _, present := data[tracker.PrimaryKeyColumn]; !present && rowID != "" {
		data[tracker.PrimaryKeyColumn] = rowID
	}
	row, err := s.AddRow(userID, tracker, data)
	return row, true, err
}

// DeleteRow entfernt eine Zeile.
func (s *RowService) DeleteRow(tracker *models.Tracker, rowID string) error {
	res := s.DB.Where("tracker_id = ? AND row_id = ?", tracker.ID, rowID).Delete(&models.TrackerRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

// GetRow lädt eine Zeile über den indizierten Punkt-Lookup.
func (s *RowService) GetRow(trackerID uint, rowID string) (*models.TrackerRow, error) {
	var row models.TrackerRow
	err := s.DB.Where("tracker_id = ? AND row_id = ?", trackerID, rowID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRowNotFound
		}
		return nil, err
	}
	return &row, nil
}

// RowExists ist der Duplicate-Key-Check (indizierter Punkt-Lookup statt
// linearem Scan).
func (s *RowService) RowExists(trackerID uint, rowID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.TrackerRow{}).
		Where("tracker_id = ? AND row_id = ?", trackerID, rowID).
		Count(&count).Error
	return count > 0, err
}

// ListRows gibt die Zeilen eines Trackers zurück, optional gefiltert nach
// einem Spaltenwert. Der Spalten-Key wird vor der Interpolation in das
// jsonb-Prädikat gegen die Allow-List geprüft.
func (s *RowService) ListRows(tracker *models.Tracker, filterKey, filterValue string) ([]models.TrackerRow, error) {
	query := s.DB.Where("tracker_id = ?", tracker.ID)

	if filterKey != "" {
		if !ValidColumnKey(filterKey) {
			return nil, validationErrorf(filterKey, "invalid filter column key")
		}
		query = query.Where(datatypes.JSONQuery("data").Equals(filterValue, filterKey))
	}

	var rows []models.TrackerRow
	if err := query.Order("row_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountRows zählt die Zeilen eines Trackers.
func (s *RowService) CountRows(trackerID uint) (int64, error) {
	var count int64
	err := s.DB.Model(&models.TrackerRow{}).Where("tracker_id = ?", trackerID).Count(&count).Error
	return count, err
}
