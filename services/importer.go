package services

import (
	"errors"
	"fmt"

	"trackdeck/config"
	"trackdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Import-Modi.
const (
	ImportModeAppend  = "append"
	ImportModeUpdate  = "update"
	ImportModeReplace = "replace"
)

// ImportFailure beschreibt das Scheitern einer einzelnen Import-Zeile.
// Row ist 1-basiert.
type ImportFailure struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportResult fasst einen Bulk-Import zusammen.
type ImportResult struct {
	Imported int             `json:"imported"`
	Updated  int             `json:"updated"`
	Failed   []ImportFailure `json:"failed"`
}

// ImportService ist die Bulk-Import-Engine. Zeilen werden unabhängig
// voneinander in fester Batch-Größe verarbeitet; eine fehlerhafte Zeile
// bricht nie den Batch ab.
type ImportService struct {
	Config *config.Config
	DB     *gorm.DB
	Rows   *RowService
	Logger *zap.Logger
}

// NewImportService erstellt eine neue Instanz des ImportService.
func NewImportService(cfg *config.Config, db *gorm.DB, rows *RowService, logger *zap.Logger) *ImportService {
	return &ImportService{Config: cfg, DB: db, Rows: rows, Logger: logger}
}

// BulkImport verarbeitet einen Batch von Zeilen gegen das Tracker-Schema.
// mode=replace löscht zuerst alle bestehenden Zeilen; Löschen und Import
// sind bewusst NICHT in einer Transaktion gekapselt — ein Absturz mitten
// im Replace kann den Tracker teilweise geleert zurücklassen
// (dokumentiertes Risiko, abhängig vom Transaktions-Scope der Persistenz).
func (s *ImportService) BulkImport(userID string, tracker *models.Tracker, rows []map[string]interface{}, mode string) (*ImportResult, error) {
	switch mode {
	case ImportModeAppend, ImportModeUpdate, ImportModeReplace:
	case "":
		mode = ImportModeAppend
	default:
		return nil, validationErrorf("", "unknown import mode %q", mode)
	}

	log := s.Logger.With(
		zap.Uint("tracker_id", tracker.ID),
		zap.String("mode", mode),
		zap.Int("rows", len(rows)))
	log.Info("Starte Bulk-Import.")

	if mode == ImportModeReplace {
		if err := s.DB.Where("tracker_id = ?", tracker.ID).Delete(&models.TrackerRow{}).Error; err != nil {
			return nil, fmt.Errorf("replace: deleting existing rows failed: %w", err)
		}
	}

	result := &ImportResult{}
	batchSize := s.Config.ImportBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		for i := start; i < end; i++ {
			s.importRow(userID, tracker, rows[i], i+1, mode, result)
		}
	}

	log.Info("Bulk-Import abgeschlossen",
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// importRow verarbeitet genau eine Import-Zeile und schreibt ihr Ergebnis
// in das Result.
func (s *ImportService) importRow(userID string, tracker *models.Tracker, data map[string]interface{}, rowNum int, mode string, result *ImportResult) {
	fail := func(err error) {
		result.Failed = append(result.Failed, ImportFailure{Row: rowNum, Error: err.Error()})
	}

	clean, err := NormalizeRowData(tracker, data, false)
	if err != nil {
		fail(err)
		return
	}
	rowID := FormatCellValue(clean[tracker.PrimaryKeyColumn])
	if rowID == "" {
		fail(validationErrorf(tracker.PrimaryKeyColumn, "primary key value missing"))
		return
	}

	if mode == ImportModeUpdate {
		_, inserted, err := s.Rows.UpsertRow(userID, tracker, rowID, clean)
		if err != nil {
			fail(err)
			return
		}
		if inserted {
			result.Imported++
		} else {
			result.Updated++
		}
		return
	}

	// append bzw. replace: reines Insert, Duplikat ist ein Zeilen-Fehler.
	if _, err := s.Rows.AddRow(userID, tracker, clean); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			fail(fmt.Errorf("%w: %s", ErrDuplicateKey, rowID))
		} else {
			fail(err)
		}
		return
	}
	result.Imported++
}
