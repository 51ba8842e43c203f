package pause

import (
	"context"

	"github.com/harborlabs/cruisesync/internal/kv"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const flagKey = "cruisesync:sync-paused"

// Gate lets operators halt ingestion without a deploy. The flag is read
// once at the top of each run, never polled mid-run.
type Gate struct {
	store kv.Store
	log   *zap.Logger
}

func NewGate(store kv.Store, log *zap.Logger) *Gate {
	return &Gate{store: store, log: log.Named("pause")}
}

// IsPaused reports the current flag. A store failure is treated as
// "not paused" so a flaky cache cannot stop price freshness.
func (g *Gate) IsPaused(ctx context.Context) bool {
	val, ok, err := g.store.Get(ctx, flagKey)
	if err != nil {
		g.log.Warn("pause flag unreadable, assuming not paused", zap.Error(err))
		return false
	}
	return ok && (val == "1" || val == "true")
}

// Pause sets the flag. Used by the operator endpoints.
func (g *Gate) Pause(ctx context.Context) error {
	return g.store.Set(ctx, flagKey, "1", 0)
}

// Resume clears the flag.
func (g *Gate) Resume(ctx context.Context) error {
	return g.store.Delete(ctx, flagKey)
}

var Module = fx.Module("pause",
	fx.Provide(NewGate),
)
