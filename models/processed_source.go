package models

import "time"

// ProcessedSource ist das Write-once-Dedup-Ledger: genau ein Eintrag pro
// (User, Source-Item), das jemals verarbeitet wurde.
type ProcessedSource struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	UserID   string `json:"user_id" gorm:"index:idx_processed_sources_unique,unique;not null"`
	SourceID string `json:"source_id" gorm:"index:idx_processed_sources_unique,unique;size:512;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (ProcessedSource) TableName() string {
	return "processed_sources"
}
