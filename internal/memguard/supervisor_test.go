package memguard

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) ListDir(ctx context.Context, path string) ([]string, error) { return nil, nil }
func (s *fakeSession) Download(ctx context.Context, path string) ([]byte, error)  { return nil, nil }
func (s *fakeSession) Noop(ctx context.Context) error                             { return nil }
func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context) (transfer.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess := &fakeSession{}
	d.sessions = append(d.sessions, sess)
	return sess, nil
}

type fixture struct {
	supervisor *Supervisor
	heap       *atomic.Uint64
	exitCode   *atomic.Int64
	gcRuns     *atomic.Int64
	dialer     *fakeDialer
	pool       *transfer.Pool
}

func setupSupervisor(t *testing.T, mem config.MemoryConfig) *fixture {
	t.Helper()
	dialer := &fakeDialer{}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pool := transfer.NewPool(config.FTPConfig{PoolSize: 2}, dialer, zap.NewNop(), fake)

	s := NewSupervisor(config.Config{Memory: mem}, pool, zap.NewNop())

	heap := &atomic.Uint64{}
	exitCode := &atomic.Int64{}
	exitCode.Store(-1)
	s.readMemStats = func(stats *runtime.MemStats) {
		stats.HeapAlloc = heap.Load()
	}
	gcRuns := &atomic.Int64{}
	s.forceGC = func() { gcRuns.Add(1) }
	s.exit = func(code int) { exitCode.Store(int64(code)) }
	s.sleep = func(time.Duration) {}

	return &fixture{supervisor: s, heap: heap, exitCode: exitCode, gcRuns: gcRuns, dialer: dialer, pool: pool}
}

func thresholds() config.MemoryConfig {
	return config.MemoryConfig{
		PollInterval:     time.Second,
		WarningBytes:     1 << 30,
		CriticalBytes:    2 << 30,
		RestartBytes:     3 << 30,
		CriticalCooldown: 20 * time.Millisecond,
	}
}

func TestCheckLevels(t *testing.T) {
	f := setupSupervisor(t, thresholds())

	f.heap.Store(500 << 20)
	require.Equal(t, LevelNormal, f.supervisor.Check())

	f.heap.Store(1500 << 20)
	require.Equal(t, LevelWarning, f.supervisor.Check())

	f.heap.Store(2500 << 20)
	require.Equal(t, LevelCritical, f.supervisor.Check())

	f.heap.Store(500 << 20)
	require.Equal(t, LevelNormal, f.supervisor.Check())
	require.Equal(t, LevelNormal, f.supervisor.LevelForTest())
	require.Equal(t, int64(-1), f.exitCode.Load())
}

func TestWarningTransitionRequestsGC(t *testing.T) {
	f := setupSupervisor(t, thresholds())

	f.heap.Store(1500 << 20)
	require.Equal(t, LevelWarning, f.supervisor.Check())
	require.Equal(t, int64(1), f.gcRuns.Load())

	// Staying in the warning band must not GC on every poll.
	require.Equal(t, LevelWarning, f.supervisor.Check())
	require.Equal(t, int64(1), f.gcRuns.Load())

	// Dropping to normal and climbing back crosses the threshold again.
	f.heap.Store(500 << 20)
	require.Equal(t, LevelNormal, f.supervisor.Check())
	f.heap.Store(1500 << 20)
	require.Equal(t, LevelWarning, f.supervisor.Check())
	require.Equal(t, int64(2), f.gcRuns.Load())
}

func TestCriticalClosesIdleSessions(t *testing.T) {
	f := setupSupervisor(t, thresholds())

	lease, err := f.pool.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	f.heap.Store(2500 << 20)
	require.Equal(t, LevelCritical, f.supervisor.Check())
	require.True(t, f.dialer.sessions[0].closed)
}

func TestRestartLevelExits(t *testing.T) {
	f := setupSupervisor(t, thresholds())

	f.heap.Store(4 << 30)
	require.Equal(t, LevelRestart, f.supervisor.Check())
	require.Equal(t, int64(1), f.exitCode.Load())
}

func TestWaitPassesWhenNotCritical(t *testing.T) {
	f := setupSupervisor(t, thresholds())
	f.heap.Store(500 << 20)
	f.supervisor.Check()

	require.NoError(t, f.supervisor.Wait(context.Background()))
}

func TestWaitBlocksUntilHeapRecovers(t *testing.T) {
	f := setupSupervisor(t, thresholds())

	f.heap.Store(2500 << 20)
	require.Equal(t, LevelCritical, f.supervisor.Check())

	// Heap drops; Wait re-samples after the cooldown and lets the batch go.
	f.heap.Store(500 << 20)
	done := make(chan error, 1)
	go func() { done <- f.supervisor.Wait(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not resume after heap recovery")
	}
	require.Equal(t, LevelNormal, f.supervisor.LevelForTest())
}

func TestWaitHonorsContext(t *testing.T) {
	mem := thresholds()
	mem.CriticalCooldown = time.Minute
	f := setupSupervisor(t, mem)

	f.heap.Store(2500 << 20)
	require.Equal(t, LevelCritical, f.supervisor.Check())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.supervisor.Wait(ctx), context.DeadlineExceeded)
}
