package orchestrator

import (
	"context"

	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/lock"
	"github.com/harborlabs/cruisesync/internal/pause"
	"github.com/harborlabs/cruisesync/internal/retry"
	"github.com/harborlabs/cruisesync/internal/sync/fetcher"
	"github.com/harborlabs/cruisesync/internal/sync/history"
	"github.com/harborlabs/cruisesync/internal/sync/merge"
	"github.com/harborlabs/cruisesync/internal/sync/report"
	"github.com/harborlabs/cruisesync/internal/sync/selection"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Repo     catalogdomain.Repository
	Selector *selection.Engine
	Fetcher  *fetcher.Fetcher
	Merger   *merge.Engine
	Reporter *report.Reporter
	Locker   *lock.Locker
	Gate     *pause.Gate
	Tuning   *config.SyncTuningHolder
	Clock    clock.Clock
	Log      *zap.Logger
}

func provide(p Params) *Orchestrator {
	return New(Deps{
		DB:       p.DB,
		Repo:     p.Repo,
		Selector: p.Selector,
		Fetcher:  p.Fetcher,
		Merger:   p.Merger,
		Reporter: p.Reporter,
		Locker:   p.Locker,
		Gate:     p.Gate,
		Tuning:   p.Tuning,
		Clock:    p.Clock,
		Log:      p.Log,
	})
}

var Module = fx.Module("sync",
	fx.Provide(
		retry.DefaultPolicy,
		selection.NewEngine,
		fetcher.New,
		history.NewRecorder,
		merge.NewEngine,
		provide,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, o *Orchestrator) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			o.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				o.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
