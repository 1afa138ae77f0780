package services

import (
	"trackdeck/models"

	"go.uber.org/zap"
)

// highConfidenceThreshold markiert Spalten-Updates für die Review-Triage.
const highConfidenceThreshold = 0.8

// ProposalBuilder übersetzt Extraktions-Ergebnisse in strukturierte,
// pro Spalte reviewbare Update-Vorschläge.
type ProposalBuilder struct {
	Rows   *RowService
	Logger *zap.Logger
}

// NewProposalBuilder erstellt eine neue Instanz des ProposalBuilders.
func NewProposalBuilder(rows *RowService, logger *zap.Logger) *ProposalBuilder {
	return &ProposalBuilder{Rows: rows, Logger: logger}
}

// Build erzeugt für jeden Extraktions-Treffer mit Daten einen Vorschlag.
// Pro (Spalte, Wert) mit definierter Spalte und nicht-nil Wert entsteht
// ein ColumnUpdate; die Feld-Confidence fällt auf die Match-Confidence
// zurück. IsNewRow ist true, außer die aufgelöste Row-ID existiert bereits.
func (p *ProposalBuilder) Build(trackers map[uint]*models.Tracker, matches []ExtractionMatch) ([]models.UpdateProposal, error) {
	var proposals []models.UpdateProposal

	for _, match := range matches {
		tracker, ok := trackers[match.TrackerID]
		if !ok || len(match.ExtractedData) == 0 {
			continue
		}

		proposal, err := p.buildOne(tracker, &match)
		if err != nil {
			return nil, err
		}
		if proposal != nil {
			proposals = append(proposals, *proposal)
		}
	}
	return proposals, nil
}

// buildOne baut den Vorschlag für einen einzelnen Tracker-Treffer; nil,
// wenn kein einziges Spalten-Update übrig bleibt.
func (p *ProposalBuilder) buildOne(tracker *models.Tracker, match *ExtractionMatch) (*models.UpdateProposal, error) {
	defs, err := tracker.ColumnDefs()
	if err != nil {
		return nil, err
	}

	rowID := FormatCellValue(match.ExtractedData[tracker.PrimaryKeyColumn])

	var existing *models.TrackerRow
	if rowID != "" {
		row, err := p.Rows.GetRow(tracker.ID, rowID)
		if err == nil {
			existing = row
		} else if err != ErrRowNotFound {
			return nil, err
		}
	}

	var updates []models.ColumnUpdate
	confidenceSum := 0.0
	hasHigh := false

	for i := range defs {
		def := &defs[i]
		value, present := match.ExtractedData[def.Key]
		if !present || value == nil {
			continue
		}

		confidence := match.Confidence
		if fc, ok := match.FieldConfidence[def.Key]; ok {
			confidence = fc
		}

		update := models.ColumnUpdate{
			ColumnKey:     def.Key,
			ColumnName:    def.Name,
			ColumnType:    def.Type,
			ProposedValue: value,
			Confidence:    confidence,
		}
		if existing != nil {
			if current, ok := existing.Data[def.Key]; ok {
				update.CurrentValue = current
			}
		}

		updates = append(updates, update)
		confidenceSum += confidence
		if confidence >= highConfidenceThreshold {
			hasHigh = true
		}
	}

	if len(updates) == 0 {
		return nil, nil
	}

	p.Logger.Debug("Vorschlag gebaut",
		zap.Uint("tracker_id", tracker.ID),
		zap.String("row_id", rowID),
		zap.Int("column_updates", len(updates)),
		zap.Bool("is_new_row", existing == nil))

	return &models.UpdateProposal{
		TrackerID:                tracker.ID,
		TrackerName:              tracker.Name,
		RowID:                    rowID,
		IsNewRow:                 existing == nil,
		ColumnUpdates:            updates,
		AverageConfidence:        confidenceSum / float64(len(updates)),
		HasHighConfidenceUpdates: hasHigh,
	}, nil
}
