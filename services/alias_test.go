package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAliasResolveIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	aliases := NewAliasService(db, zap.NewNop())

	_, err := aliases.Add("user-1", tracker, "Green Dress", "12")
	require.NoError(t, err)

	rowID, err := aliases.Resolve(tracker.ID, "green dress")
	require.NoError(t, err)
	assert.Equal(t, "12", rowID)

	rowID, err = aliases.Resolve(tracker.ID, "GREEN DRESS")
	require.NoError(t, err)
	assert.Equal(t, "12", rowID)
}

func TestAliasResolveNoHit(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	aliases := NewAliasService(db, zap.NewNop())

	rowID, err := aliases.Resolve(tracker.ID, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "", rowID)

	rowID, err = aliases.Resolve(tracker.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "", rowID)
}

func TestAliasOwnership(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	aliases := NewAliasService(db, zap.NewNop())

	_, err := aliases.Add("someone-else", tracker, "alias", "1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	alias, err := aliases.Add("user-1", tracker, "alias", "1")
	require.NoError(t, err)

	assert.ErrorIs(t, aliases.Remove("someone-else", tracker, alias.ID), ErrUnauthorized)
	require.NoError(t, aliases.Remove("user-1", tracker, alias.ID))
	assert.ErrorIs(t, aliases.Remove("user-1", tracker, alias.ID), ErrRowNotFound)
}

func TestAliasList(t *testing.T) {
	db := newTestDB(t)
	tracker, _ := createTestTracker(t, db, "user-1")
	aliases := NewAliasService(db, zap.NewNop())

	_, err := aliases.Add("user-1", tracker, "zeta", "1")
	require.NoError(t, err)
	_, err = aliases.Add("user-1", tracker, "alpha", "2")
	require.NoError(t, err)

	list, err := aliases.List(tracker)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Alias)
	assert.Equal(t, "zeta", list[1].Alias)
}
