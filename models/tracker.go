package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Spaltentypen eines Trackers.
const (
	ColumnTypeText    = "text"
	ColumnTypeNumber  = "number"
	ColumnTypeDate    = "date"
	ColumnTypeSelect  = "select"
	ColumnTypeBoolean = "boolean"
)

// ColumnDefinition beschreibt eine einzelne Spalte im Schema eines Trackers.
type ColumnDefinition struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Key       string   `json:"key"`
	Type      string   `json:"type"`
	Required  bool     `json:"required"`
	Options   []string `json:"options,omitempty"`
	Order     int      `json:"order"`
	Width     int      `json:"width,omitempty"`
	AIEnabled bool     `json:"aiEnabled,omitempty"`
	AIAliases []string `json:"aiAliases,omitempty"`
}

// AIEligible meldet, ob die Spalte der Extraction-Engine angeboten wird.
func (c *ColumnDefinition) AIEligible() bool {
	return c.AIEnabled || c.Required
}

// Tracker repräsentiert ein benutzerdefiniertes Schema samt seiner Zeilen
// (ein dynamisches Spreadsheet).
type Tracker struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID      string `json:"user_id" gorm:"index;not null"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	// Serialisierte []ColumnDefinition
	Columns datatypes.JSON `json:"columns" gorm:"type:jsonb"`

	// Muss immer auf einen existierenden Spalten-Key zeigen.
	PrimaryKeyColumn string `json:"primary_key_column" gorm:"not null"`

	// Ordner-Hierarchie ist ein externer Kollaborateur; hier nur Referenz.
	FolderID *uint `json:"folder_id,omitempty"`

	IsActive bool `json:"is_active" gorm:"default:true"`
}

// TableName gibt explizit den Tabellennamen an.
func (Tracker) TableName() string {
	return "trackers"
}

// ColumnDefs deserialisiert das Spalten-Schema.
func (t *Tracker) ColumnDefs() ([]ColumnDefinition, error) {
	if len(t.Columns) == 0 {
		return nil, nil
	}
	var defs []ColumnDefinition
	if err := json.Unmarshal(t.Columns, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// SetColumnDefs serialisiert das Spalten-Schema.
func (t *Tracker) SetColumnDefs(defs []ColumnDefinition) error {
	b, err := json.Marshal(defs)
	if err != nil {
		return err
	}
	t.Columns = b
	return nil
}

// ColumnByKey sucht eine Spalte anhand ihres Keys.
func (t *Tracker) ColumnByKey(key string) (*ColumnDefinition, error) {
	defs, err := t.ColumnDefs()
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Key == key {
			return &defs[i], nil
		}
	}
	return nil, nil
}
