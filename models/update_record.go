package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TrackerMatch ist das Ergebnis des Source-Matchers für einen Tracker.
type TrackerMatch struct {
	TrackerID       uint     `json:"trackerId"`
	TrackerName     string   `json:"trackerName"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	RelevantColumns []string `json:"relevantColumns,omitempty"`
}

// ColumnUpdate ist ein vorgeschlagener Wert für eine einzelne Spalte.
type ColumnUpdate struct {
	ColumnKey     string      `json:"columnKey"`
	ColumnName    string      `json:"columnName"`
	ColumnType    string      `json:"columnType"`
	CurrentValue  interface{} `json:"currentValue,omitempty"`
	ProposedValue interface{} `json:"proposedValue"`
	Confidence    float64     `json:"confidence"`
}

// UpdateProposal bündelt alle Spalten-Vorschläge für eine Zeile.
type UpdateProposal struct {
	TrackerID     uint           `json:"trackerId"`
	TrackerName   string         `json:"trackerName"`
	RowID         string         `json:"rowId"`
	IsNewRow      bool           `json:"isNewRow"`
	ColumnUpdates []ColumnUpdate `json:"columnUpdates"`

	// Review-Metadaten, kein Control-Flow.
	AverageConfidence        float64 `json:"averageConfidence"`
	HasHighConfidenceUpdates bool    `json:"hasHighConfidenceUpdates"`
}

// UpdateRecord ist ein reviewbares Bündel von Update-Vorschlägen aus einer
// eingehenden Quelle. Lebenszyklus: unverarbeitet -> genau eine terminale
// Transition (approve/reject) setzt processed und archived_at.
type UpdateRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   string `json:"user_id" gorm:"index;not null"`
	Source   string `json:"source" gorm:"index"`
	SourceID string `json:"source_id,omitempty" gorm:"index"`

	Title   string `json:"title"`
	Summary string `json:"summary,omitempty" gorm:"type:text"`
	Urgency string `json:"urgency,omitempty"`

	// Serialisierte []TrackerMatch bzw. []UpdateProposal
	TrackerMatches datatypes.JSON `json:"tracker_matches" gorm:"type:jsonb"`
	Proposals      datatypes.JSON `json:"proposals" gorm:"type:jsonb"`

	Processed bool `json:"processed" gorm:"index;default:false"`
	Approved  bool `json:"approved" gorm:"default:false"`
	Rejected  bool `json:"rejected" gorm:"default:false"`

	ViewedAt   *time.Time `json:"viewed_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (UpdateRecord) TableName() string {
	return "update_records"
}

// ProposalList deserialisiert die gespeicherten Vorschläge.
func (u *UpdateRecord) ProposalList() ([]UpdateProposal, error) {
	if len(u.Proposals) == 0 {
		return nil, nil
	}
	var props []UpdateProposal
	if err := json.Unmarshal(u.Proposals, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// SetProposals serialisiert die Vorschläge.
func (u *UpdateRecord) SetProposals(props []UpdateProposal) error {
	b, err := json.Marshal(props)
	if err != nil {
		return err
	}
	u.Proposals = b
	return nil
}

// SetTrackerMatches serialisiert die Matcher-Ergebnisse.
func (u *UpdateRecord) SetTrackerMatches(matches []TrackerMatch) error {
	b, err := json.Marshal(matches)
	if err != nil {
		return err
	}
	u.TrackerMatches = b
	return nil
}
