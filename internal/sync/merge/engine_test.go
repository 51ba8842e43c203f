package merge

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
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/migration"
	"github.com/harborlabs/cruisesync/internal/sync/history"
	"github.com/harborlabs/cruisesync/internal/traveltek"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mergeFixture struct {
	engine *Engine
	db     *gorm.DB
	repo   catalogdomain.Repository
	line   *catalogdomain.CruiseLine
	clock  *clock.FakeClock
}

func setupMerge(t *testing.T) *mergeFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide(node)
	fake := clock.NewFakeClock(testNow)
	recorder := history.NewRecorder(repo, config.NewStaticSyncTuningHolder(config.SyncTuning{}), fake, zap.NewNop())
	engine := NewEngine(db, repo, recorder, fake, zap.NewNop())

	line := &catalogdomain.CruiseLine{ID: node.Generate(), Code: "7", Name: "Royal Caribbean", Active: true}
	require.NoError(t, db.Create(line).Error)

	return &mergeFixture{engine: engine, db: db, repo: repo, line: line, clock: fake}
}

func parseDoc(t *testing.T, raw string) *traveltek.Document {
	t.Helper()
	doc, err := traveltek.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

const sampleDoc = `{
	"cruiseid": "12345",
	"name": "7 Night Caribbean",
	"saildate": "2026-11-14",
	"returndate": "2026-11-21",
	"nights": 7,
	"lineid": "7",
	"shipid": "RC01",
	"shipname": "Wonder of the Seas",
	"startportid": "MIA",
	"regionids": ["CARIB"],
	"portids": ["MIA", "CZM", "MIA"],
	"prices": {
		"BESTFARE": {
			"IB": {"2": {"price": "899.00", "taxes": "120.50"}},
			"B2": {"2": {"price": "1299.00", "taxes": "120.50"}}
		}
	}
}`

func TestMergeCreatesCruise(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	outcome, err := f.engine.Merge(ctx, f.line, parseDoc(t, sampleDoc), "batch-1")
	require.NoError(t, err)
	require.True(t, outcome.Created)
	require.False(t, outcome.Updated)
	require.True(t, outcome.ActuallyChanged)
	require.Equal(t, 2, outcome.PriceLines)

	cruise, err := f.repo.FindCruiseByFeedID(ctx, f.db, f.line.ID, "12345")
	require.NoError(t, err)
	require.NotNil(t, cruise)
	require.Equal(t, "7 Night Caribbean", cruise.Name)
	require.Equal(t, 7, cruise.Nights)
	require.NotNil(t, cruise.LastPricedAt)
	require.True(t, cruise.LastPricedAt.Equal(testNow))
	require.NotNil(t, cruise.EmbarkPortID)

	lines, err := f.repo.ListPriceLines(ctx, f.db, cruise.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	var cheapest catalogdomain.CheapestPrice
	require.NoError(t, f.db.Where("cruise_id = ?", cruise.ID).First(&cheapest).Error)
	require.NotNil(t, cheapest.Interior)
	require.True(t, cheapest.Interior.Equal(decimal.RequireFromString("899.00")))
	require.NotNil(t, cheapest.Balcony)
	require.Nil(t, cheapest.Oceanview)
	require.Nil(t, cheapest.Suite)
}

func TestMergeUpdateReplacesPriceLines(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	_, err := f.engine.Merge(ctx, f.line, parseDoc(t, sampleDoc), "batch-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	updated := parseDoc(t, `{
		"cruiseid": "12345",
		"name": "7 Night Caribbean",
		"saildate": "2026-11-14",
		"lineid": "7",
		"shipid": "RC01",
		"prices": {
			"BESTFARE": {
				"IB": {"2": {"price": "849.00", "taxes": "120.50"}}
			}
		}
	}`)

	outcome, err := f.engine.Merge(ctx, f.line, updated, "batch-2")
	require.NoError(t, err)
	require.True(t, outcome.Updated)
	require.False(t, outcome.Created)
	require.True(t, outcome.ActuallyChanged)
	require.Equal(t, 1, outcome.PriceLines)

	cruise, err := f.repo.FindCruiseByFeedID(ctx, f.db, f.line.ID, "12345")
	require.NoError(t, err)
	require.True(t, cruise.LastPricedAt.Equal(testNow.Add(time.Hour)))

	lines, err := f.repo.ListPriceLines(ctx, f.db, cruise.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].BasePrice.Equal(decimal.RequireFromString("849.00")))

	// The overwritten lines must be in history.
	latest, err := f.repo.LatestHistoryByKey(ctx, f.db, cruise.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
}

func TestMergeIdenticalDocumentIsNotAChange(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	_, err := f.engine.Merge(ctx, f.line, parseDoc(t, sampleDoc), "batch-1")
	require.NoError(t, err)

	outcome, err := f.engine.Merge(ctx, f.line, parseDoc(t, sampleDoc), "batch-2")
	require.NoError(t, err)
	require.True(t, outcome.Updated)
	require.False(t, outcome.ActuallyChanged)
}

func TestMergeDistinguishesNilFromZero(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	withNilTaxes := `{
		"cruiseid": "12345",
		"saildate": "2026-11-14",
		"lineid": "7",
		"shipid": "RC01",
		"prices": {"RATE1": {"IB": {"2": {"price": "899.00", "taxes": null}}}}
	}`
	withZeroTaxes := `{
		"cruiseid": "12345",
		"saildate": "2026-11-14",
		"lineid": "7",
		"shipid": "RC01",
		"prices": {"RATE1": {"IB": {"2": {"price": "899.00", "taxes": "0.00"}}}}
	}`

	_, err := f.engine.Merge(ctx, f.line, parseDoc(t, withNilTaxes), "batch-1")
	require.NoError(t, err)

	outcome, err := f.engine.Merge(ctx, f.line, parseDoc(t, withZeroTaxes), "batch-2")
	require.NoError(t, err)
	require.True(t, outcome.ActuallyChanged)
}

func TestMergeFallsBackToFeedCheapestBlock(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	doc := parseDoc(t, `{
		"cruiseid": "12345",
		"saildate": "2026-11-14",
		"lineid": "7",
		"shipid": "RC01",
		"cheapest": {"inside": "599.00", "balcony": "999.00"}
	}`)

	outcome, err := f.engine.Merge(ctx, f.line, doc, "batch-1")
	require.NoError(t, err)
	require.True(t, outcome.Created)
	require.Zero(t, outcome.PriceLines)
	require.False(t, outcome.ActuallyChanged)

	cruise, err := f.repo.FindCruiseByFeedID(ctx, f.db, f.line.ID, "12345")
	require.NoError(t, err)

	var cheapest catalogdomain.CheapestPrice
	require.NoError(t, f.db.Where("cruise_id = ?", cruise.ID).First(&cheapest).Error)
	require.NotNil(t, cheapest.Interior)
	require.True(t, cheapest.Interior.Equal(decimal.RequireFromString("599.00")))
	require.NotNil(t, cheapest.Balcony)
	require.Nil(t, cheapest.Oceanview)
}

func TestMergeReusesExistingShipAndPort(t *testing.T) {
	f := setupMerge(t)
	ctx := context.Background()

	_, err := f.engine.Merge(ctx, f.line, parseDoc(t, sampleDoc), "batch-1")
	require.NoError(t, err)

	second := parseDoc(t, `{
		"cruiseid": "67890",
		"saildate": "2026-12-05",
		"lineid": "7",
		"shipid": "RC01",
		"shipname": "Wonder of the Seas",
		"startportid": "MIA",
		"prices": {"RATE1": {"IB": {"2": {"price": "700.00"}}}}
	}`)
	_, err = f.engine.Merge(ctx, f.line, second, "batch-1")
	require.NoError(t, err)

	var shipCount, portCount int64
	require.NoError(t, f.db.Model(&catalogdomain.Ship{}).Count(&shipCount).Error)
	require.NoError(t, f.db.Model(&catalogdomain.Port{}).Count(&portCount).Error)
	require.Equal(t, int64(1), shipCount)
	require.Equal(t, int64(1), portCount)
}
