package services

import (
	"testing"
	"time"

	"trackdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUpdateFixture(t *testing.T) (*UpdateService, *RowService, *models.Tracker, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	tracker, trackers := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())
	updates := NewUpdateService(db, trackers, rows, zap.NewNop())
	return updates, rows, tracker, db
}

func createUpdateRecord(t *testing.T, db *gorm.DB, userID string, proposals []models.UpdateProposal) *models.UpdateRecord {
	t.Helper()
	record := &models.UpdateRecord{
		UserID:   userID,
		Source:   "gmail",
		SourceID: "msg-1",
		Title:    "order update",
	}
	require.NoError(t, record.SetProposals(proposals))
	require.NoError(t, db.Create(record).Error)
	return record
}

func statusProposal(tracker *models.Tracker, rowID string, isNew bool) models.UpdateProposal {
	return models.UpdateProposal{
		TrackerID:   tracker.ID,
		TrackerName: tracker.Name,
		RowID:       rowID,
		IsNewRow:    isNew,
		ColumnUpdates: []models.ColumnUpdate{
			{ColumnKey: "order_number", ColumnName: "Order Number", ColumnType: models.ColumnTypeText, ProposedValue: rowID, Confidence: 0.9},
			{ColumnKey: "status", ColumnName: "Status", ColumnType: models.ColumnTypeSelect, ProposedValue: "shipped", Confidence: 0.9},
		},
	}
}

func TestApproveAppliesProposals(t *testing.T) {
	updates, rows, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	result, err := updates.Approve("user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Empty(t, result.Failed)

	row, err := rows.GetRow(tracker.ID, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "shipped", row.Data["status"])

	var saved models.UpdateRecord
	require.NoError(t, db.First(&saved, record.ID).Error)
	assert.True(t, saved.Processed)
	assert.True(t, saved.Approved)
	assert.False(t, saved.Rejected)
	assert.NotNil(t, saved.ArchivedAt)
}

func TestApproveMergesIntoExistingRow(t *testing.T) {
	updates, rows, tracker, db := newUpdateFixture(t)

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{
		"order_number": "A-1",
		"status":       "pending",
		"amount":       99.0,
	})
	require.NoError(t, err)

	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", false)})

	_, err = updates.Approve("user-1", record.ID)
	require.NoError(t, err)

	row, err := rows.GetRow(tracker.ID, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "shipped", row.Data["status"])
	// Nicht vorgeschlagene Felder bleiben erhalten.
	assert.EqualValues(t, 99.0, row.Data["amount"])
}

func TestTerminalTransitionIsExclusive(t *testing.T) {
	updates, _, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	_, err := updates.Approve("user-1", record.ID)
	require.NoError(t, err)

	// Zweite terminale Transition schlägt fehl, egal in welche Richtung.
	assert.ErrorIs(t, updates.Reject("user-1", record.ID), ErrAlreadyProcessed)
	_, err = updates.Approve("user-1", record.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestRejectDoesNotTouchRows(t *testing.T) {
	updates, rows, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	require.NoError(t, updates.Reject("user-1", record.ID))

	count, err := rows.CountRows(tracker.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	var saved models.UpdateRecord
	require.NoError(t, db.First(&saved, record.ID).Error)
	assert.True(t, saved.Processed)
	assert.True(t, saved.Rejected)
	assert.False(t, saved.Approved)
}

func TestApproveWithEditsValidatesAgainstSchema(t *testing.T) {
	updates, _, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	edited := statusProposal(tracker, "A-1", true)
	edited.ColumnUpdates[1].ProposedValue = "not-an-option"

	result, err := updates.ApproveWithEdits("user-1", record.ID, []models.UpdateProposal{edited})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Error, "not in options")

	// Der Record ist trotzdem terminal abgeschlossen.
	var saved models.UpdateRecord
	require.NoError(t, db.First(&saved, record.ID).Error)
	assert.True(t, saved.Processed)
}

func TestApproveWithEditsPrimaryKeyCollision(t *testing.T) {
	updates, rows, tracker, db := newUpdateFixture(t)

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "A-1"})
	require.NoError(t, err)
	_, err = rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "B-2"})
	require.NoError(t, err)

	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", false)})

	// Edit verschiebt den Primary-Key auf eine bereits belegte Zeile.
	edited := statusProposal(tracker, "A-1", false)
	edited.ColumnUpdates[0].ProposedValue = "B-2"

	result, err := updates.ApproveWithEdits("user-1", record.ID, []models.UpdateProposal{edited})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Error, "duplicate")
}

func TestUpdateAccessControl(t *testing.T) {
	updates, _, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	_, err := updates.Approve("someone-else", record.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = updates.Approve("user-1", record.ID+100)
	assert.ErrorIs(t, err, ErrUpdateNotFound)
}

func TestArchiveAndViewedAreIdempotent(t *testing.T) {
	updates, _, tracker, db := newUpdateFixture(t)
	record := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})

	require.NoError(t, updates.MarkViewed("user-1", record.ID))
	var first models.UpdateRecord
	require.NoError(t, db.First(&first, record.ID).Error)
	require.NotNil(t, first.ViewedAt)
	viewedAt := *first.ViewedAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, updates.MarkViewed("user-1", record.ID))
	var second models.UpdateRecord
	require.NoError(t, db.First(&second, record.ID).Error)
	assert.True(t, second.ViewedAt.Equal(viewedAt))

	require.NoError(t, updates.Archive("user-1", record.ID))
	require.NoError(t, updates.Archive("user-1", record.ID))
}

func TestListSeparatesActiveAndArchived(t *testing.T) {
	updates, _, tracker, db := newUpdateFixture(t)
	active := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "A-1", true)})
	archived := createUpdateRecord(t, db, "user-1", []models.UpdateProposal{statusProposal(tracker, "B-2", true)})
	require.NoError(t, updates.Archive("user-1", archived.ID))

	records, total, err := updates.List("user-1", ViewModeActive, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, active.ID, records[0].ID)

	records, total, err = updates.List("user-1", ViewModeArchived, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, archived.ID, records[0].ID)
}
