package services

import (
	"sort"
	"strings"

	"trackdeck/models"

	"go.uber.org/zap"
)

// matchThreshold: Tracker unterhalb dieser Confidence werden verworfen.
const matchThreshold = 0.15

// updateCues sind Signalwörter für Update-Sprache im Quelltext.
var updateCues = []string{
	"updated", "update", "changed", "change", "is now", "now at",
	"set to", "new status", "moved to", "revised",
}

// MatchService ist der deterministische Pre-Filter vor jedem Modell-Aufruf:
// billig, erklärbar und unabhängig vom Modell. Er hält den Prompt klein,
// auch wenn die Tracker-Zahl des Users wächst.
type MatchService struct {
	Logger *zap.Logger
}

// NewMatchService erstellt eine neue Instanz des MatchService.
func NewMatchService(logger *zap.Logger) *MatchService {
	return &MatchService{Logger: logger}
}

// MatchTrackers bewertet einen Text additiv gegen alle Tracker:
// Tracker-Name +0.3, Beschreibung +0.2, pro treffender AI-Spalte +0.2
// (plus +0.1 bei Update-Sprache), gedeckelt bei 1.0. Nur Tracker mit
// Confidence >= 0.15, absteigend sortiert.
func (s *MatchService) MatchTrackers(text string, trackers []models.Tracker) []models.TrackerMatch {
	lower := strings.ToLower(text)
	hasUpdateCue := containsAny(lower, updateCues)

	var matches []models.TrackerMatch
	for i := range trackers {
		tracker := &trackers[i]
		match := s.scoreTracker(lower, hasUpdateCue, tracker)
		if match != nil {
			matches = append(matches, *match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// scoreTracker berechnet die Confidence für einen einzelnen Tracker.
func (s *MatchService) scoreTracker(lowerText string, hasUpdateCue bool, tracker *models.Tracker) *models.TrackerMatch {
	confidence := 0.0
	var keywords []string
	var relevantColumns []string

	if name := strings.ToLower(tracker.Name); name != "" && strings.Contains(lowerText, name) {
		confidence += 0.3
		keywords = append(keywords, tracker.Name)
	}
	if desc := strings.ToLower(tracker.Description); desc != "" && strings.Contains(lowerText, desc) {
		confidence += 0.2
		keywords = append(keywords, tracker.Description)
	}

	defs, err := tracker.ColumnDefs()
	if err != nil {
		s.Logger.Warn("Tracker-Schema nicht lesbar, wird im Matching übersprungen",
			zap.Uint("tracker_id", tracker.ID), zap.Error(err))
		return nil
	}

	for i := range defs {
		def := &defs[i]
		if !def.AIEligible() {
			continue
		}
		keyword := columnHit(lowerText, def)
		if keyword == "" {
			continue
		}
		confidence += 0.2
		if hasUpdateCue {
			confidence += 0.1
		}
		keywords = append(keywords, keyword)
		relevantColumns = append(relevantColumns, def.Key)
	}

	if confidence < matchThreshold {
		return nil
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &models.TrackerMatch{
		TrackerID:       tracker.ID,
		TrackerName:     tracker.Name,
		Confidence:      confidence,
		MatchedKeywords: keywords,
		RelevantColumns: relevantColumns,
	}
}

// columnHit prüft Name, Key und alle Aliase einer Spalte gegen den Text
// und gibt das erste treffende Keyword zurück.
func columnHit(lowerText string, def *models.ColumnDefinition) string {
	if name := strings.ToLower(def.Name); name != "" && strings.Contains(lowerText, name) {
		return def.Name
	}
	if key := strings.ToLower(def.Key); key != "" && strings.Contains(lowerText, key) {
		return def.Key
	}
	for _, alias := range def.AIAliases {
		if alias != "" && strings.Contains(lowerText, strings.ToLower(alias)) {
			return alias
		}
	}
	return ""
}

func containsAny(lowerText string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowerText, term) {
			return true
		}
	}
	return false
}
