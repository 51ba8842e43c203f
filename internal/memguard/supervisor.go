package memguard

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/harborlabs/cruisesync/internal/config"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"go.uber.org/zap"
)

type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelRestart  Level = "restart"
)

// Supervisor watches heap usage and throttles the fetch pipeline before
// the process gets OOM-killed. At the critical level it gates new fetch
// batches and drops idle transfer sessions; past the restart level it
// exits so the platform restarts a clean process.
type Supervisor struct {
	cfg  config.MemoryConfig
	pool *transfer.Pool
	log  *zap.Logger

	mu         sync.Mutex
	level      Level
	resumeAt   time.Time
	resumeChan chan struct{}

	readMemStats func(*runtime.MemStats)
	forceGC      func()
	exit         func(int)
	sleep        func(time.Duration)
}

func NewSupervisor(cfg config.Config, pool *transfer.Pool, log *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:          cfg.Memory,
		pool:         pool,
		log:          log.Named("memguard"),
		level:        LevelNormal,
		resumeChan:   make(chan struct{}),
		readMemStats: runtime.ReadMemStats,
		forceGC:      runtime.GC,
		exit:         os.Exit,
		sleep:        time.Sleep,
	}
}

// Run polls until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Check samples the heap once and applies thresholds. Exported so tests
// and the poll loop share one path.
func (s *Supervisor) Check() Level {
	var stats runtime.MemStats
	s.readMemStats(&stats)
	heap := stats.HeapAlloc
	obsmetrics.Sync().SetHeapBytes(heap)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.cfg.RestartBytes > 0 && heap >= s.cfg.RestartBytes:
		s.setLevel(LevelRestart, heap)
		s.mu.Unlock()
		s.restart(heap)
		s.mu.Lock()
		return LevelRestart

	case s.cfg.CriticalBytes > 0 && heap >= s.cfg.CriticalBytes:
		if s.level != LevelCritical {
			s.setLevel(LevelCritical, heap)
			closed := s.pool.CloseIdle()
			s.log.Warn("dropped idle transfer sessions", zap.Int("closed", closed))
			s.forceGC()
		}
		s.resumeAt = time.Now().Add(s.cfg.CriticalCooldown)
		return LevelCritical

	case s.cfg.WarningBytes > 0 && heap >= s.cfg.WarningBytes:
		if s.level != LevelWarning {
			s.setLevel(LevelWarning, heap)
			// one GC on the way in; repeating it every poll would just
			// burn CPU while the heap sits in the warning band
			s.forceGC()
		}
		s.release()
		return LevelWarning

	default:
		if s.level != LevelNormal {
			s.log.Info("heap back under thresholds", zap.Uint64("heap_bytes", heap))
			s.level = LevelNormal
			obsmetrics.Sync().IncMemoryEvent(string(LevelNormal))
		}
		s.release()
		return LevelNormal
	}
}

func (s *Supervisor) setLevel(level Level, heap uint64) {
	s.level = level
	obsmetrics.Sync().IncMemoryEvent(string(level))
	s.log.Warn("heap threshold crossed",
		zap.String("level", string(level)),
		zap.Uint64("heap_bytes", heap))
}

// release unblocks any Wait callers parked on the critical gate.
func (s *Supervisor) release() {
	close(s.resumeChan)
	s.resumeChan = make(chan struct{})
}

// restart logs, gives in-flight work a moment to land its counters, and
// exits so the supervisor process manager brings up a fresh instance.
func (s *Supervisor) restart(heap uint64) {
	s.log.Error("heap past restart threshold, exiting for a clean restart",
		zap.Uint64("heap_bytes", heap),
		zap.Duration("drain_wait", s.cfg.DrainWaitOnExit))
	s.sleep(s.cfg.DrainWaitOnExit)
	s.exit(1)
}

// Wait implements the fetcher gate: it blocks between batches while the
// heap is critical, re-sampling on a cooldown so a recovered heap resumes
// fetching promptly.
func (s *Supervisor) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		level := s.level
		resumeAt := s.resumeAt
		ch := s.resumeChan
		s.mu.Unlock()

		if level != LevelCritical {
			return nil
		}

		wait := time.Until(resumeAt)
		if wait <= 0 {
			// cooldown elapsed; re-sample before letting the batch through
			if s.Check() != LevelCritical {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-time.After(wait):
		}
	}
}

// LevelForTest reports the current level.
func (s *Supervisor) LevelForTest() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}
