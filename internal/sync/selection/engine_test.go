package selection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/catalog/repository"
	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/migration"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*Engine, *gorm.DB, catalogdomain.Repository, *snowflake.Node, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide(node)
	fake := clock.NewFakeClock(testNow)
	return NewEngine(db, repo, fake, zap.NewNop()), db, repo, node, fake
}

func seedLine(t *testing.T, db *gorm.DB, node *snowflake.Node) (catalogdomain.CruiseLine, catalogdomain.Ship) {
	t.Helper()
	line := catalogdomain.CruiseLine{ID: node.Generate(), Code: "7", Name: "Royal Caribbean", Active: true}
	require.NoError(t, db.Create(&line).Error)
	ship := catalogdomain.Ship{ID: node.Generate(), LineID: line.ID, Code: "RC01", Name: "Wonder of the Seas"}
	require.NoError(t, db.Create(&ship).Error)
	return line, ship
}

func seedCruise(t *testing.T, db *gorm.DB, node *snowflake.Node, line catalogdomain.CruiseLine, ship catalogdomain.Ship, feedID string, sail time.Time, lastPriced *time.Time) catalogdomain.Cruise {
	t.Helper()
	cruise := catalogdomain.Cruise{
		ID:           node.Generate(),
		LineID:       line.ID,
		ShipID:       ship.ID,
		FeedCruiseID: feedID,
		Name:         "Cruise " + feedID,
		SailDate:     sail,
		Active:       true,
		LastPricedAt: lastPriced,
	}
	require.NoError(t, db.Create(&cruise).Error)
	return cruise
}

func TestSelectSkipsRecentlyPriced(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	recent := testNow.Add(-1 * time.Hour)
	stale := testNow.Add(-48 * time.Hour)
	seedCruise(t, db, node, line, ship, "100", testNow.AddDate(0, 2, 0), &recent)
	seedCruise(t, db, node, line, ship, "101", testNow.AddDate(0, 2, 0), &stale)
	seedCruise(t, db, node, line, ship, "102", testNow.AddDate(0, 3, 0), nil)

	result, err := engine.Select(context.Background(), line.ID, line.Code, 24*time.Hour, 500)
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Candidates, 2)

	feedIDs := []string{result.Candidates[0].FeedCruiseID, result.Candidates[1].FeedCruiseID}
	require.NotContains(t, feedIDs, "100")
}

func TestSelectNeverSkipsUnpriced(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	// Unpriced cruises survive any recency window.
	seedCruise(t, db, node, line, ship, "100", testNow.AddDate(0, 2, 0), nil)

	result, err := engine.Select(context.Background(), line.ID, line.Code, 365*24*time.Hour, 500)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.False(t, result.Candidates[0].HasPricing)
}

func TestSelectExcludesPastAndInactive(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	seedCruise(t, db, node, line, ship, "100", testNow.AddDate(0, -1, 0), nil)
	inactive := seedCruise(t, db, node, line, ship, "101", testNow.AddDate(0, 2, 0), nil)
	require.NoError(t, db.Model(&inactive).Update("active", false).Error)
	seedCruise(t, db, node, line, ship, "102", testNow.AddDate(0, 2, 0), nil)

	result, err := engine.Select(context.Background(), line.ID, line.Code, 24*time.Hour, 500)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Equal(t, "102", result.Candidates[0].FeedCruiseID)
}

func TestSelectPriorityOrdering(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	older := testNow.Add(-72 * time.Hour)
	newer := testNow.Add(-48 * time.Hour)
	seedCruise(t, db, node, line, ship, "300", testNow.AddDate(0, 3, 0), &newer)
	seedCruise(t, db, node, line, ship, "200", testNow.AddDate(0, 2, 0), &older)
	seedCruise(t, db, node, line, ship, "101", testNow.AddDate(0, 2, 0), nil)
	seedCruise(t, db, node, line, ship, "100", testNow.AddDate(0, 1, 0), nil)

	result, err := engine.Select(context.Background(), line.ID, line.Code, 24*time.Hour, 500)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 4)

	got := make([]string, 0, 4)
	for _, c := range result.Candidates {
		got = append(got, c.FeedCruiseID)
	}
	// Unpriced first by soonest sail, then priced by oldest last-priced.
	require.Equal(t, []string{"100", "101", "200", "300"}, got)
}

func TestSelectCapCountsOverflowAsSkipped(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	for i := 0; i < 5; i++ {
		seedCruise(t, db, node, line, ship, fmt.Sprintf("%d", 100+i), testNow.AddDate(0, 1, i), nil)
	}

	result, err := engine.Select(context.Background(), line.ID, line.Code, 24*time.Hour, 3)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, "100", result.Candidates[0].FeedCruiseID)
}

func TestSelectTieBreaksOnFeedID(t *testing.T) {
	engine, db, _, node, _ := setupEngine(t)
	line, ship := seedLine(t, db, node)

	sail := testNow.AddDate(0, 2, 0)
	seedCruise(t, db, node, line, ship, "b", sail, nil)
	seedCruise(t, db, node, line, ship, "a", sail, nil)

	result, err := engine.Select(context.Background(), line.ID, line.Code, 24*time.Hour, 500)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	require.Equal(t, "a", result.Candidates[0].FeedCruiseID)
}
