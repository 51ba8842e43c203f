package scheduler

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
	"github.com/harborlabs/cruisesync/internal/kv"
	"github.com/harborlabs/cruisesync/internal/lock"
	"github.com/harborlabs/cruisesync/internal/migration"
	"github.com/harborlabs/cruisesync/internal/pause"
	"github.com/harborlabs/cruisesync/internal/retry"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/harborlabs/cruisesync/internal/sync/fetcher"
	"github.com/harborlabs/cruisesync/internal/sync/history"
	"github.com/harborlabs/cruisesync/internal/sync/merge"
	"github.com/harborlabs/cruisesync/internal/sync/orchestrator"
	"github.com/harborlabs/cruisesync/internal/sync/report"
	"github.com/harborlabs/cruisesync/internal/sync/selection"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type nilDialer struct{}

func (nilDialer) Dial(ctx context.Context) (transfer.Session, error) {
	return nil, transfer.ErrChannelUnavailable
}

type schedFixture struct {
	sched    *Scheduler
	orch     *orchestrator.Orchestrator
	recorder *history.Recorder
	db       *gorm.DB
	repo     catalogdomain.Repository
	node     *snowflake.Node
	clock    *clock.FakeClock
}

func setupScheduler(t *testing.T, cfg Config) *schedFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide(node)
	fake := clock.NewFakeClock(testNow)
	holder := config.NewStaticSyncTuningHolder(config.SyncTuning{HistoryRetention: 30 * 24 * time.Hour})
	log := zap.NewNop()

	store := kv.NewMemory(fake)
	gate := pause.NewGate(store, log)
	locker, err := lock.NewLocker(store, log)
	require.NoError(t, err)

	pool := transfer.NewPool(config.FTPConfig{PoolSize: 1}, nilDialer{}, log, fake)
	recorder := history.NewRecorder(repo, holder, fake, log)
	merger := merge.NewEngine(db, repo, recorder, fake, log)
	selector := selection.NewEngine(db, repo, fake, log)
	f := fetcher.New(pool, holder, retry.Policy{MaxAttempts: 1}, nil, log)
	reporter := report.NewReporter(report.NoOpSink{}, log)

	orch := orchestrator.New(orchestrator.Deps{
		DB:       db,
		Repo:     repo,
		Selector: selector,
		Fetcher:  f,
		Merger:   merger,
		Reporter: reporter,
		Locker:   locker,
		Gate:     gate,
		Tuning:   holder,
		Clock:    fake,
		Log:      log,
	})

	sched, err := New(Params{
		DB:       db,
		Log:      log,
		Repo:     repo,
		Orch:     orch,
		Recorder: recorder,
		Clock:    fake,
		Config:   cfg,
	})
	require.NoError(t, err)

	return &schedFixture{sched: sched, orch: orch, recorder: recorder, db: db, repo: repo, node: node, clock: fake}
}

func (f *schedFixture) seedLine(t *testing.T, code string) catalogdomain.CruiseLine {
	t.Helper()
	line := catalogdomain.CruiseLine{ID: f.node.Generate(), Code: code, Name: "Line " + code, Active: true}
	require.NoError(t, f.db.Create(&line).Error)
	return line
}

func (f *schedFixture) seedCruise(t *testing.T, line catalogdomain.CruiseLine, feedID string, lastPriced *time.Time) {
	t.Helper()
	ship := catalogdomain.Ship{ID: f.node.Generate(), LineID: line.ID, Code: "SH1", Name: "Ship"}
	require.NoError(t, f.db.Where("line_id = ? AND code = ?", line.ID, ship.Code).FirstOrCreate(&ship).Error)
	cruise := catalogdomain.Cruise{
		ID:           f.node.Generate(),
		LineID:       line.ID,
		ShipID:       ship.ID,
		FeedCruiseID: feedID,
		Name:         "Cruise " + feedID,
		SailDate:     testNow.AddDate(0, 2, 0),
		Active:       true,
		LastPricedAt: lastPriced,
	}
	require.NoError(t, f.db.Create(&cruise).Error)
}

// enqueuedRecently exploits the dedup window: a line the sweep just
// enqueued reports a follow-up event as a duplicate.
func (f *schedFixture) enqueuedRecently(lineCode string) bool {
	status := f.orch.Enqueue(syncdomain.IngestEvent{
		EventID:  "probe",
		LineCode: lineCode,
	})
	return status == orchestrator.EnqueueDeduplicated
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLineRefreshEnqueuesStaleLines(t *testing.T) {
	f := setupScheduler(t, Config{})

	staleLine := f.seedLine(t, "7")
	f.seedCruise(t, staleLine, "100", nil)

	freshLine := f.seedLine(t, "16")
	recent := testNow.Add(-time.Hour)
	f.seedCruise(t, freshLine, "200", &recent)

	emptyLine := f.seedLine(t, "21")

	require.NoError(t, f.sched.LineRefreshJob(context.Background()))

	require.True(t, f.enqueuedRecently(staleLine.Code))
	require.False(t, f.enqueuedRecently(freshLine.Code))
	require.False(t, f.enqueuedRecently(emptyLine.Code))
}

func TestLineRefreshTreatsOldPricingAsStale(t *testing.T) {
	f := setupScheduler(t, Config{RefreshAfter: 24 * time.Hour})

	line := f.seedLine(t, "7")
	old := testNow.Add(-48 * time.Hour)
	f.seedCruise(t, line, "100", &old)

	require.NoError(t, f.sched.LineRefreshJob(context.Background()))
	require.True(t, f.enqueuedRecently(line.Code))
}

func TestLineRefreshMixedFreshnessIsNotStale(t *testing.T) {
	f := setupScheduler(t, Config{RefreshAfter: 24 * time.Hour})

	// One fresh cruise means the line's webhooks are flowing.
	line := f.seedLine(t, "7")
	old := testNow.Add(-48 * time.Hour)
	recent := testNow.Add(-time.Hour)
	f.seedCruise(t, line, "100", &old)
	f.seedCruise(t, line, "101", &recent)

	require.NoError(t, f.sched.LineRefreshJob(context.Background()))
	require.False(t, f.enqueuedRecently(line.Code))
}

func TestHistoryPurgeJob(t *testing.T) {
	f := setupScheduler(t, Config{})
	ctx := context.Background()
	cruiseID := snowflake.ID(1001)

	lines := []catalogdomain.PriceLine{
		{CruiseID: cruiseID, RateCode: "RATE1", CabinCode: "IB", OccupancyCode: "2"},
	}
	_, err := f.recorder.Capture(ctx, f.db, cruiseID, lines, "batch-1", history.ChangeReasonWebhook)
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.sched.HistoryPurgeJob(ctx))

	var count int64
	require.NoError(t, f.db.Model(&catalogdomain.PriceHistory{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	f := setupScheduler(t, Config{EnabledJobs: []string{"history_purge"}})

	line := f.seedLine(t, "7")
	f.seedCruise(t, line, "100", nil)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	// line_refresh was filtered out, so nothing hit the queue.
	require.False(t, f.enqueuedRecently(line.Code))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, time.Hour, cfg.RunInterval)
	require.Equal(t, 24*time.Hour, cfg.RefreshAfter)

	custom := Config{RunInterval: time.Minute}.withDefaults()
	require.Equal(t, time.Minute, custom.RunInterval)
	require.Equal(t, 24*time.Hour, custom.RefreshAfter)
}
