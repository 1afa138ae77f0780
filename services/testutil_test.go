package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"trackdeck/config"
	"trackdeck/llm"
	"trackdeck/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// newTestDB öffnet eine frische In-Memory-Datenbank pro Test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Tracker{},
		&models.TrackerRow{},
		&models.RowAlias{},
		&models.UpdateRecord{},
		&models.ProcessedSource{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		InboxBatchSize:     10,
		DedupRetentionDays: 90,
		ImportBatchSize:    50,
	}
}

// testColumns ist das Standard-Schema der Service-Tests: ein
// Bestell-Tracker mit Text-, Select- und Number-Spalte.
func testColumns() []models.ColumnDefinition {
	return []models.ColumnDefinition{
		{ID: "c1", Name: "Order Number", Key: "order_number", Type: models.ColumnTypeText, Required: true, Order: 0},
		{ID: "c2", Name: "Status", Key: "status", Type: models.ColumnTypeSelect, Options: []string{"pending", "shipped", "delivered"}, Order: 1, AIEnabled: true},
		{ID: "c3", Name: "Amount", Key: "amount", Type: models.ColumnTypeNumber, Order: 2},
	}
}

func createTestTracker(t *testing.T, db *gorm.DB, userID string) (*models.Tracker, *TrackerService) {
	t.Helper()

	trackers := NewTrackerService(db, zap.NewNop())
	tracker, err := trackers.Create(userID, "Order Tracker", "tracks customer orders", testColumns(), "order_number", nil)
	require.NoError(t, err)
	return tracker, trackers
}

// stubLLM ist der Test-Doppelgänger des Text-Generierungs-Clients.
type stubLLM struct {
	response    string
	err         error
	calls       int
	lastProfile llm.Profile
	lastUser    string
}

func (s *stubLLM) Complete(ctx context.Context, profile llm.Profile, userPrompt string) (string, error) {
	s.calls++
	s.lastProfile = profile
	s.lastUser = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}
