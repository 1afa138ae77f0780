package models

import (
	"time"

	"gorm.io/datatypes"
)

// TrackerRow speichert eine einzelne Zeile eines Trackers. Die Daten sind
// bewusst lose typisiert (jsonb); validiert wird an der Store-Grenze gegen
// das Schema, nicht vom Storage-Layer.
type TrackerRow struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TrackerID uint `json:"tracker_id" gorm:"index:idx_tracker_rows_unique_row,unique;not null"`

	// Wert der Primary-Key-Spalte, eindeutig pro Tracker.
	RowID string `json:"row_id" gorm:"index:idx_tracker_rows_unique_row,unique;size:512;not null"`

	// Darf Keys enthalten, die nicht mehr im aktuellen Schema stehen
	// (additive, tolerante Schema-Evolution).
	Data datatypes.JSONMap `json:"data" gorm:"type:jsonb"`

	CreatedBy string `json:"created_by"`
	UpdatedBy string `json:"updated_by"`
}

// TableName gibt explizit den Tabellennamen an.
func (TrackerRow) TableName() string {
	return "tracker_rows"
}
