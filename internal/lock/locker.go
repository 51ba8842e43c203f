package lock

import (
	"context"
	"errors"
	"time"

	"github.com/harborlabs/cruisesync/internal/kv"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "cruisesync:line-lock:"

// Locker serializes sync runs per cruise line. A lock is held by exactly
// one run at a time and carries a TTL so a crashed holder cannot wedge the
// partition forever.
type Locker struct {
	store kv.Store
	log   *zap.Logger
}

func NewLocker(store kv.Store, log *zap.Logger) (*Locker, error) {
	if store == nil {
		return nil, errors.New("lock store not configured")
	}
	return &Locker{store: store, log: log.Named("lock")}, nil
}

// Acquire attempts a set-if-absent with TTL. It returns (true, nil) when the
// caller now holds the lock, (false, nil) on contention. On any unexpected
// store error it fails open: the caller proceeds unlocked, trading a rare
// double-write for availability.
func (l *Locker) Acquire(ctx context.Context, lineCode, holderID string, ttl time.Duration) (bool, error) {
	if lineCode == "" {
		return false, errors.New("lock line code is empty")
	}
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}

	ok, err := l.store.SetNX(ctx, keyPrefix+lineCode, holderID, ttl)
	if err != nil {
		l.log.Error("lock store unavailable, proceeding without partition lock",
			zap.String("line", lineCode),
			zap.Error(err))
		return true, nil
	}
	return ok, nil
}

// Release deletes the lock only while the caller is still the recorded
// holder, so a run that outlived its TTL cannot release a reassigned lock.
func (l *Locker) Release(ctx context.Context, lineCode, holderID string) {
	if lineCode == "" || holderID == "" {
		return
	}
	if err := l.store.CompareAndDelete(ctx, keyPrefix+lineCode, holderID); err != nil {
		l.log.Warn("lock release failed, lock will expire on its own",
			zap.String("line", lineCode),
			zap.Error(err))
	}
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)
