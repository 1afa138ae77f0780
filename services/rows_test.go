package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddRowRejectsDuplicateKey(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "A-1", "status": "pending"})
	require.NoError(t, err)

	_, err = rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "A-1", "status": "shipped"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	count, err := rows.CountRows(tracker.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestAddRowRequiresPrimaryKeyValue(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "  ", "status": "pending"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateRowMergesPartialData(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{
		"order_number": "A-1",
		"status":       "pending",
		"amount":       42.0,
	})
	require.NoError(t, err)

	updated, err := rows.UpdateRow("user-2", tracker, "A-1", map[string]interface{}{"status": "shipped"})
	require.NoError(t, err)

	// Nicht gesendete Felder bleiben erhalten.
	assert.Equal(t, "shipped", updated.Data["status"])
	assert.Equal(t, "A-1", updated.Data["order_number"])
	assert.EqualValues(t, 42.0, updated.Data["amount"])
	assert.Equal(t, "user-2", updated.UpdatedBy)
	assert.Equal(t, "user-1", updated.CreatedBy)
}

func TestUpdateRowUnknownRow(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.UpdateRow("user-1", tracker, "missing", map[string]interface{}{"status": "shipped"})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestUpdateRowPrimaryKeyChange(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "A-1"})
	require.NoError(t, err)
	_, err = rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "B-2"})
	require.NoError(t, err)

	// Kollision mit bestehender Zeile
	_, err = rows.UpdateRow("user-1", tracker, "A-1", map[string]interface{}{"order_number": "B-2"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// Umbenennung auf freien Key funktioniert
	updated, err := rows.UpdateRow("user-1", tracker, "A-1", map[string]interface{}{"order_number": "C-3"})
	require.NoError(t, err)
	assert.Equal(t, "C-3", updated.RowID)

	_, err = rows.GetRow(tracker.ID, "A-1")
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestUpsertRow(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	// Insert-Pfad: Primary-Key wird aus der Row-ID übernommen.
	row, inserted, err := rows.UpsertRow("user-1", tracker, "A-1", map[string]interface{}{"status": "pending"})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "A-1", row.RowID)
	assert.Equal(t, "A-1", row.Data["order_number"])

	// Merge-Pfad
	row, inserted, err = rows.UpsertRow("user-1", tracker, "A-1", map[string]interface{}{"status": "shipped"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "shipped", row.Data["status"])

	count, err := rows.CountRows(tracker.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteRow(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.AddRow("user-1", tracker, map[string]interface{}{"order_number": "A-1"})
	require.NoError(t, err)

	require.NoError(t, rows.DeleteRow(tracker, "A-1"))
	assert.ErrorIs(t, rows.DeleteRow(tracker, "A-1"), ErrRowNotFound)
}

func TestListRowsRejectsInvalidFilterKey(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	rows := NewRowService(db, zap.NewNop())

	_, err := rows.ListRows(tracker, "data'); DROP TABLE", "x")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}
