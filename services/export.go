package services

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"trackdeck/config"
	"trackdeck/models"
	"trackdeck/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ExportService rendert CSV-Snapshots eines Trackers. Reiner Konsument des
// Row-Store-Lesepfads, kein Teil des Schreibpfads.
type ExportService struct {
	Config   *config.Config
	Rows     *RowService
	S3Client *s3.Client
	Logger   *zap.Logger
}

// NewExportService erstellt eine neue Instanz des ExportService.
func NewExportService(cfg *config.Config, rows *RowService, s3Client *s3.Client, logger *zap.Logger) *ExportService {
	return &ExportService{Config: cfg, Rows: rows, S3Client: s3Client, Logger: logger}
}

// CSV rendert alle Zeilen eines Trackers als CSV: Spalten in
// Schema-Reihenfolge, Werte comma/quote-escaped.
func (s *ExportService) CSV(tracker *models.Tracker) ([]byte, error) {
	defs, err := tracker.ColumnDefs()
	if err != nil {
		return nil, err
	}

	rows, err := s.Rows.ListRows(tracker, "", "")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(defs))
	for i, def := range defs {
		header[i] = def.Name
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	record := make([]string, len(defs))
	for _, row := range rows {
		for i, def := range defs {
			record[i] = FormatCellValue(row.Data[def.Key])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UploadSnapshot lädt einen CSV-Snapshot nach S3 und gibt den Link zurück.
func (s *ExportService) UploadSnapshot(tracker *models.Tracker, data []byte) (string, error) {
	if s.S3Client == nil {
		return "", fmt.Errorf("s3 client not configured")
	}
	link, err := storage.UploadSnapshot(s.S3Client, s.Config, tracker.Slug, data)
	if err != nil {
		return "", err
	}
	s.Logger.Info("CSV-Snapshot nach S3 hochgeladen",
		zap.String("slug", tracker.Slug),
		zap.String("link", link))
	return link, nil
}
