package services

import (
	"errors"

	"trackdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AliasService löst Freitext-Aliase auf kanonische Row-IDs innerhalb eines
// Trackers auf. Wird ausschließlich zum Nachbearbeiten der
// Extraktions-Ausgabe benutzt.
type AliasService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewAliasService erstellt eine neue Instanz des AliasService.
func NewAliasService(db *gorm.DB, logger *zap.Logger) *AliasService {
	return &AliasService{DB: db, Logger: logger}
}

// Resolve sucht den Term als exakten (case-insensitiven) Alias im Tracker.
// Erster Treffer gewinnt; leerer String bedeutet kein Treffer.
func (s *AliasService) Resolve(trackerID uint, term string) (string, error) {
	if term == "" {
		return "", nil
	}
	var alias models.RowAlias
	err := s.DB.Where("tracker_id = ? AND lower(alias) = lower(?)", trackerID, term).
		Order("id asc").
		First(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return alias.RowID, nil
}

// Add legt einen Alias an; Ownership läuft über den Tracker.
func (s *AliasService) Add(userID string, tracker *models.Tracker, alias, rowID string) (*models.RowAlias, error) {
	if tracker.UserID != userID {
		return nil, ErrUnauthorized
	}
	if alias == "" || rowID == "" {
		return nil, validationErrorf("", "alias and row id required")
	}

	record := &models.RowAlias{
		TrackerID: tracker.ID,
		Alias:     alias,
		RowID:     rowID,
		UserID:    userID,
	}
	if err := s.DB.Create(record).Error; err != nil {
		return nil, err
	}
	s.Logger.Debug("Alias angelegt",
		zap.Uint("tracker_id", tracker.ID),
		zap.String("alias", alias),
		zap.String("row_id", rowID))
	return record, nil
}

// Remove entfernt einen Alias; Ownership läuft über den Tracker.
func (s *AliasService) Remove(userID string, tracker *models.Tracker, aliasID uint) error {
	if tracker.UserID != userID {
		return ErrUnauthorized
	}
	res := s.DB.Where("id = ? AND tracker_id = ?", aliasID, tracker.ID).Delete(&models.RowAlias{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

// List gibt alle Aliase eines Trackers zurück.
func (s *AliasService) List(tracker *models.Tracker) ([]models.RowAlias, error) {
	var aliases []models.RowAlias
	if err := s.DB.Where("tracker_id = ?", tracker.ID).Order("alias asc").Find(&aliases).Error; err != nil {
		return nil, err
	}
	return aliases, nil
}
