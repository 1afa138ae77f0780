package services

import (
	"time"

	"trackdeck/config"
	"trackdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger ist das Write-once-Dedup-Ledger für verarbeitete Source-Items.
// Lookups sind auf das Retention-Fenster begrenzt; alte Einträge werden
// nicht gelöscht.
type Ledger struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewLedger erstellt eine neue Instanz des Ledgers.
func NewLedger(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{Config: cfg, DB: db, Logger: logger}
}

// AlreadyProcessed prüft per Punkt-Lookup, ob das Source-Item innerhalb
// des Retention-Fensters bereits verarbeitet wurde.
func (l *Ledger) AlreadyProcessed(userID, sourceID string) (bool, error) {
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays())

	var count int64
	err := l.DB.Model(&models.ProcessedSource{}).
		Where("user_id = ? AND source_id = ? AND created_at > ?", userID, sourceID, cutoff).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed schreibt den Ledger-Eintrag. Muss als LETZTER Schritt der
// Item-Verarbeitung laufen, erst nachdem der UpdateRecord dauerhaft
// gespeichert ist; nur so bleibt ein Re-Run der Pipeline idempotent.
// Doppeltes Markieren ist ein No-op.
func (l *Ledger) MarkProcessed(userID, sourceID string) error {
	entry := &models.ProcessedSource{UserID: userID, SourceID: sourceID}
	return l.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "source_id"}},
		DoNothing: true,
	}).Create(entry).Error
}

func (l *Ledger) retentionDays() int {
	if l.Config.DedupRetentionDays > 0 {
		return l.Config.DedupRetentionDays
	}
	return 90
}
