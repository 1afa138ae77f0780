package models

import "time"

// RowAlias bildet einen Freitext-Alias auf die Row-ID einer Zeile ab.
// Mehrere Aliase dürfen auf dieselbe Zeile zeigen; Aliase sind reine
// Identitäts-Hinweise und kein Teil des Zeilen-Schemas.
type RowAlias struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	TrackerID uint   `json:"tracker_id" gorm:"index:idx_row_aliases_lookup,unique;not null"`
	Alias     string `json:"alias" gorm:"index:idx_row_aliases_lookup,unique;size:512;not null"`
	RowID     string `json:"row_id" gorm:"size:512;not null"`
	UserID    string `json:"user_id" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (RowAlias) TableName() string {
	return "row_aliases"
}
