package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trackdeck/llm"
	"trackdeck/models"

	"go.uber.org/zap"
)

// ExtractionMatch ist das validierte Ergebnis des Modells für einen
// Tracker.
type ExtractionMatch struct {
	TrackerID       uint                   `json:"trackerId"`
	TrackerName     string                 `json:"trackerName"`
	Confidence      float64                `json:"confidence"`
	ExtractedData   map[string]interface{} `json:"extractedData"`
	FieldConfidence map[string]float64     `json:"fieldConfidence,omitempty"`
}

// extractionResponse ist der strikte JSON-Vertrag mit dem Modell.
type extractionResponse struct {
	Matches []ExtractionMatch `json:"matches"`
}

// Extractor ruft den Text-Generierungs-Service mit einem kombinierten
// Match+Extract-Prompt auf. Ein einziger Call statt zwei sequenzieller
// tauscht einen größeren Prompt gegen deutlich geringere Latenz; der
// Matcher-Vorfilter hält den Prompt trotzdem klein. Die Modell-Antwort
// gilt als nicht vertrauenswürdig: Parse-Fehler degradieren zu einer
// leeren Match-Liste statt die Pipeline zu beenden.
type Extractor struct {
	Client  llm.Client
	Profile llm.Profile
	Rows    *RowService
	Aliases *AliasService
	Logger  *zap.Logger
}

// NewExtractor erstellt eine neue Instanz des Extractors.
func NewExtractor(client llm.Client, profile llm.Profile, rows *RowService, aliases *AliasService, logger *zap.Logger) *Extractor {
	return &Extractor{Client: client, Profile: profile, Rows: rows, Aliases: aliases, Logger: logger}
}

// Extract baut den Prompt aus den gematchten Trackern, ruft das Modell auf
// und normalisiert die Antwort. Extrahierte Primary-Key-Werte, die keine
// bekannte Zeile treffen, werden über den Alias-Resolver aufgelöst und
// durch die kanonische Row-ID ersetzt.
func (e *Extractor) Extract(ctx context.Context, text string, trackers map[uint]*models.Tracker, matches []models.TrackerMatch) ([]ExtractionMatch, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	prompt, err := buildExtractionPrompt(text, trackers, matches)
	if err != nil {
		return nil, err
	}

	raw, err := e.Client.Complete(ctx, e.Profile, prompt)
	if err != nil {
		return nil, err
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &resp); err != nil {
		e.Logger.Warn("Modell-Antwort ist kein valides JSON, behandle als keine Treffer",
			zap.Error(err), zap.Int("response_len", len(raw)))
		return nil, nil
	}

	var out []ExtractionMatch
	for _, m := range resp.Matches {
		tracker, ok := trackers[m.TrackerID]
		if !ok || len(m.ExtractedData) == 0 {
			continue
		}
		if err := e.resolvePrimaryKey(tracker, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// resolvePrimaryKey ersetzt einen extrahierten Primary-Key-Wert durch die
// kanonische Row-ID, wenn er als Alias bekannt ist und keine Zeile direkt
// trifft.
func (e *Extractor) resolvePrimaryKey(tracker *models.Tracker, match *ExtractionMatch) error {
	value, present := match.ExtractedData[tracker.PrimaryKeyColumn]
	if !present {
		return nil
	}
	rowID := FormatCellValue(value)
	if rowID == "" {
		return nil
	}

	exists, err := e.Rows.RowExists(tracker.ID, rowID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	resolved, err := e.Aliases.Resolve(tracker.ID, rowID)
	if err != nil {
		return err
	}
	if resolved != "" {
		e.Logger.Debug("Primary-Key über Alias aufgelöst",
			zap.Uint("tracker_id", tracker.ID),
			zap.String("alias", rowID),
			zap.String("row_id", resolved))
		match.ExtractedData[tracker.PrimaryKeyColumn] = resolved
	}
	return nil
}

// buildExtractionPrompt baut den kombinierten Match+Extract-Prompt. Das
// Schema jedes Trackers wird auf die AI-relevanten Spalten reduziert.
func buildExtractionPrompt(text string, trackers map[uint]*models.Tracker, matches []models.TrackerMatch) (string, error) {
	var b strings.Builder

	b.WriteString("Below are tracker schemas and an inbound email. ")
	b.WriteString("Decide which trackers the email updates and extract field values.\n\n")
	b.WriteString("TRACKERS:\n")

	for _, match := range matches {
		tracker, ok := trackers[match.TrackerID]
		if !ok {
			continue
		}
		defs, err := tracker.ColumnDefs()
		if err != nil {
			return "", fmt.Errorf("invalid schema for tracker %d: %w", tracker.ID, err)
		}

		fmt.Fprintf(&b, "- trackerId=%d name=%q", tracker.ID, tracker.Name)
		if tracker.Description != "" {
			fmt.Fprintf(&b, " description=%q", tracker.Description)
		}
		fmt.Fprintf(&b, " primaryKey=%q\n", tracker.PrimaryKeyColumn)

		for i := range defs {
			def := &defs[i]
			if !def.AIEligible() {
				continue
			}
			fmt.Fprintf(&b, "  - key=%q name=%q type=%s", def.Key, def.Name, def.Type)
			if def.Required {
				b.WriteString(" required")
			}
			if len(def.Options) > 0 {
				fmt.Fprintf(&b, " options=%s", strings.Join(def.Options, "|"))
			}
			if len(def.AIAliases) > 0 {
				fmt.Fprintf(&b, " aliases=%s", strings.Join(def.AIAliases, "|"))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nEMAIL:\n")
	b.WriteString(text)
	b.WriteString("\n\nRespond with strict JSON of this exact shape:\n")
	b.WriteString(`{"matches":[{"trackerId":0,"trackerName":"","confidence":0.0,"extractedData":{"columnKey":"value"},"fieldConfidence":{"columnKey":0.0}}]}`)
	b.WriteString("\nOmit trackers the email does not update. Omit fields that are not stated in the email.")

	return b.String(), nil
}

// stripCodeFences entfernt Markdown-Code-Fences um die Modell-Antwort.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		return strings.Trim(s, "` ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
