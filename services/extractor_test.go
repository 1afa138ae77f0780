package services

import (
	"context"
	"fmt"
	"testing"

	"trackdeck/llm"
	"trackdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newExtractorFixture(t *testing.T, client llm.Client) (*Extractor, *models.Tracker, *RowService, *AliasService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())
	aliases := NewAliasService(db, zap.NewNop())
	extractor := NewExtractor(client, llm.ProfileTrackerUpdate, rows, aliases, zap.NewNop())
	return extractor, tracker, rows, aliases, db
}

func trackerIndexOf(trackers ...*models.Tracker) map[uint]*models.Tracker {
	index := make(map[uint]*models.Tracker, len(trackers))
	for _, tracker := range trackers {
		index[tracker.ID] = tracker
	}
	return index
}

func matchFor(tracker *models.Tracker) []models.TrackerMatch {
	return []models.TrackerMatch{{TrackerID: tracker.ID, TrackerName: tracker.Name, Confidence: 0.5}}
}

func TestExtractParsesModelResponse(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, _, _, _ := newExtractorFixture(t, stub)
	stub.response = fmt.Sprintf(
		`{"matches":[{"trackerId":%d,"trackerName":"Order Tracker","confidence":0.9,"extractedData":{"order_number":"A-1","status":"shipped"},"fieldConfidence":{"status":0.95}}]}`,
		tracker.ID)

	out, err := extractor.Extract(context.Background(), "order A-1 shipped", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tracker.ID, out[0].TrackerID)
	assert.Equal(t, "shipped", out[0].ExtractedData["status"])
	assert.Equal(t, 0.95, out[0].FieldConfidence["status"])
	assert.Equal(t, 1, stub.calls)
	// Das konfigurierte Profil erreicht den Client.
	assert.Equal(t, llm.ProfileTrackerUpdate, stub.lastProfile)
	assert.Contains(t, stub.lastUser, "order_number")
}

func TestExtractStripsMarkdownFences(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, _, _, _ := newExtractorFixture(t, stub)
	stub.response = fmt.Sprintf(
		"```json\n{\"matches\":[{\"trackerId\":%d,\"confidence\":0.8,\"extractedData\":{\"status\":\"shipped\"}}]}\n```",
		tracker.ID)

	out, err := extractor.Extract(context.Background(), "text", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "shipped", out[0].ExtractedData["status"])
}

func TestExtractInvalidJSONDegradesToNoMatches(t *testing.T) {
	stub := &stubLLM{response: "Sorry, I could not process this email."}
	extractor, tracker, _, _, _ := newExtractorFixture(t, stub)

	out, err := extractor.Extract(context.Background(), "text", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractSkipsUnknownTrackersAndEmptyData(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, _, _, _ := newExtractorFixture(t, stub)
	stub.response = fmt.Sprintf(
		`{"matches":[{"trackerId":9999,"confidence":0.9,"extractedData":{"status":"shipped"}},{"trackerId":%d,"confidence":0.9,"extractedData":{}}]}`,
		tracker.ID)

	out, err := extractor.Extract(context.Background(), "text", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractResolvesPrimaryKeyAlias(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, rows, aliases, _ := newExtractorFixture(t, stub)

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "12", "status": "pending"})
	require.NoError(t, err)
	_, err = aliases.Add("user-1", tracker, "green dress", "12")
	require.NoError(t, err)

	stub.response = fmt.Sprintf(
		`{"matches":[{"trackerId":%d,"confidence":0.9,"extractedData":{"order_number":"green dress","status":"shipped"}}]}`,
		tracker.ID)

	out, err := extractor.Extract(context.Background(), "the green dress shipped", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Alias wird durch die kanonische Row-ID ersetzt.
	assert.Equal(t, "12", out[0].ExtractedData["order_number"])

	// Die aufgelöste Zeile existiert: der Vorschlag ist ein Update, keine
	// neue Zeile.
	builder := NewProposalBuilder(rows, zap.NewNop())
	proposals, err := builder.Build(trackerIndexOf(tracker), out)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.False(t, proposals[0].IsNewRow)
	assert.Equal(t, "12", proposals[0].RowID)
}

func TestExtractKeepsDirectRowIDHit(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, rows, aliases, _ := newExtractorFixture(t, stub)

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "12"})
	require.NoError(t, err)
	// Alias, der auf eine andere Zeile zeigt: darf den Direkt-Treffer nicht
	// überschreiben.
	_, err = aliases.Add("user-1", tracker, "12", "99")
	require.NoError(t, err)

	stub.response = fmt.Sprintf(
		`{"matches":[{"trackerId":%d,"confidence":0.9,"extractedData":{"order_number":"12","status":"shipped"}}]}`,
		tracker.ID)

	out, err := extractor.Extract(context.Background(), "order 12 shipped", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "12", out[0].ExtractedData["order_number"])
}

func TestExtractNoMatchesNoModelCall(t *testing.T) {
	stub := &stubLLM{}
	extractor, tracker, _, _, _ := newExtractorFixture(t, stub)

	out, err := extractor.Extract(context.Background(), "text", trackerIndexOf(tracker), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, stub.calls)
}

func TestExtractForwardsConfiguredProfile(t *testing.T) {
	stub := &stubLLM{response: `{"matches":[]}`}
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())
	aliases := NewAliasService(db, zap.NewNop())
	extractor := NewExtractor(stub, llm.ProfileTrackerDiscovery, rows, aliases, zap.NewNop())

	_, err := extractor.Extract(context.Background(), "text", trackerIndexOf(tracker), matchFor(tracker))
	require.NoError(t, err)
	assert.Equal(t, llm.ProfileTrackerDiscovery, stub.lastProfile)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1}  "))
}
