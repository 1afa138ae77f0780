package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"trackdeck/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugCleanRegex = regexp.MustCompile(`[^a-z0-9]+`)

// TrackerService verwaltet Tracker-Definitionen (Schema-CRUD).
type TrackerService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewTrackerService erstellt eine neue Instanz des TrackerService.
func NewTrackerService(db *gorm.DB, logger *zap.Logger) *TrackerService {
	return &TrackerService{DB: db, Logger: logger}
}

// Create legt einen neuen Tracker an. Das Schema wird validiert, der Slug
// aus dem Namen abgeleitet und global eindeutig gemacht.
func (s *TrackerService) Create(userID, name, description string, defs []models.ColumnDefinition, primaryKeyColumn string, folderID *uint) (*models.Tracker, error) {
	if err := ValidateSchema(defs, primaryKeyColumn); err != nil {
		return nil, err
	}
	assignColumnIDs(defs)

	slug, err := s.uniqueSlug(name)
	if err != nil {
		return nil, err
	}

	tracker := &models.Tracker{
		UserID:           userID,
		Name:             name,
		Slug:             slug,
		Description:      description,
		PrimaryKeyColumn: primaryKeyColumn,
		FolderID:         folderID,
		IsActive:         true,
	}
	if err := tracker.SetColumnDefs(defs); err != nil {
		return nil, err
	}
	if err := s.DB.Create(tracker).Error; err != nil {
		return nil, err
	}

	s.Logger.Info("Tracker angelegt", zap.Uint("tracker_id", tracker.ID), zap.String("slug", slug))
	return tracker, nil
}

// Get lädt einen Tracker und prüft die Ownership des Aufrufers.
func (s *TrackerService) Get(userID string, trackerID uint) (*models.Tracker, error) {
	var tracker models.Tracker
	if err := s.DB.First(&tracker, trackerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackerNotFound
		}
		return nil, err
	}
	if tracker.UserID != userID {
		return nil, ErrUnauthorized
	}
	return &tracker, nil
}

// List gibt alle Tracker eines Users zurück.
func (s *TrackerService) List(userID string) ([]models.Tracker, error) {
	var trackers []models.Tracker
	if err := s.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&trackers).Error; err != nil {
		return nil, err
	}
	return trackers, nil
}

// ListActive gibt alle aktiven Tracker eines Users zurück (Pipeline-Input).
func (s *TrackerService) ListActive(userID string) ([]models.Tracker, error) {
	var trackers []models.Tracker
	if err := s.DB.Where("user_id = ? AND is_active = ?", userID, true).Find(&trackers).Error; err != nil {
		return nil, err
	}
	return trackers, nil
}

// UpdateColumns ersetzt das Schema eines Trackers. Schema-Evolution ist
// additiv: bestehende Spalten-Keys dürfen nicht entfernt werden.
func (s *TrackerService) UpdateColumns(userID string, trackerID uint, defs []models.ColumnDefinition, primaryKeyColumn string) (*models.Tracker, error) {
	tracker, err := s.Get(userID, trackerID)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(defs, primaryKeyColumn); err != nil {
		return nil, err
	}
	assignColumnIDs(defs)

	oldDefs, err := tracker.ColumnDefs()
	if err != nil {
		return nil, err
	}
	newKeys := make(map[string]bool, len(defs))
	for _, def := range defs {
		newKeys[def.Key] = true
	}
	for _, def := range oldDefs {
		if !newKeys[def.Key] {
			return nil, validationErrorf(def.Key, "columns can only be added, not removed")
		}
	}

	if err := tracker.SetColumnDefs(defs); err != nil {
		return nil, err
	}
	tracker.PrimaryKeyColumn = primaryKeyColumn
	if err := s.DB.Save(tracker).Error; err != nil {
		return nil, err
	}
	return tracker, nil
}

// Delete entfernt einen Tracker samt Zeilen und Aliasen.
func (s *TrackerService) Delete(userID string, trackerID uint) error {
	tracker, err := s.Get(userID, trackerID)
	if err != nil {
		return err
	}
	if err := s.DB.Where("tracker_id = ?", tracker.ID).Delete(&models.TrackerRow{}).Error; err != nil {
		return err
	}
	if err := s.DB.Where("tracker_id = ?", tracker.ID).Delete(&models.RowAlias{}).Error; err != nil {
		return err
	}
	return s.DB.Delete(tracker).Error
}

// assignColumnIDs vergibt stabile IDs für Spalten, die noch keine haben
// (z.B. frisch vom Client angelegte).
func assignColumnIDs(defs []models.ColumnDefinition) {
	for i := range defs {
		if defs[i].ID == "" {
			defs[i].ID = uuid.NewString()
		}
	}
}

// uniqueSlug leitet einen URL-sicheren, global eindeutigen Slug ab.
func (s *TrackerService) uniqueSlug(name string) (string, error) {
	base := strings.Trim(slugCleanRegex.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if base == "" {
		base = "tracker"
	}

	slug := base
	for i := 2; ; i++ {
		var count int64
		if err := s.DB.Model(&models.Tracker{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
