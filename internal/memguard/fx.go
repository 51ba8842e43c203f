package memguard

import (
	"context"

	"github.com/harborlabs/cruisesync/internal/sync/fetcher"
	"go.uber.org/fx"
)

var Module = fx.Module("memguard",
	fx.Provide(
		NewSupervisor,
		func(s *Supervisor) fetcher.Gate { return s },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Supervisor) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
