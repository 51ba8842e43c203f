package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/harborlabs/cruisesync/internal/sync/history"
	"github.com/harborlabs/cruisesync/internal/sync/orchestrator"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

// EventTypeScheduledRefresh marks events the sweep injects, as opposed to
// supplier webhooks.
const EventTypeScheduledRefresh = "scheduled_refresh"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     catalogdomain.Repository
	Orch     *orchestrator.Orchestrator
	Recorder *history.Recorder
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

// Scheduler runs the periodic jobs that webhooks alone do not cover: a
// staleness sweep for lines whose notifications were missed, and price
// history retention.
type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	repo     catalogdomain.Repository
	orch     *orchestrator.Orchestrator
	recorder *history.Recorder
	clock    clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Orch == nil || p.Recorder == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		repo:     p.Repo,
		orch:     p.Orch,
		recorder: p.Recorder,
		clock:    p.Clock,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	metrics := obsmetrics.Sync()
	metrics.IncJobRun(name)

	err := fn(ctx)
	metrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"line_refresh", s.isJobEnabled("line_refresh"), 2 * time.Minute, s.LineRefreshJob},
		{"history_purge", s.isJobEnabled("history_purge"), 10 * time.Minute, s.HistoryPurgeJob},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty EnabledJobs means all jobs run
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// LineRefreshJob enqueues a refresh for every active line whose freshest
// cruise price is older than RefreshAfter. Lines covered by recent
// webhooks come out the other side as no-ops via the recency filter.
func (s *Scheduler) LineRefreshJob(ctx context.Context) error {
	lines, err := s.repo.ListActiveLines(ctx, s.db)
	if err != nil {
		return fmt.Errorf("list active lines: %w", err)
	}

	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.RefreshAfter)
	enqueued := 0
	for _, line := range lines {
		stale, err := s.lineIsStale(ctx, line, cutoff)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		status := s.orch.Enqueue(syncdomain.IngestEvent{
			EventID:    uuid.NewString(),
			EventType:  EventTypeScheduledRefresh,
			LineCode:   line.Code,
			ReceivedAt: now,
		})
		if status == orchestrator.EnqueueQueued {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.log.Info("staleness sweep enqueued refreshes", zap.Int("lines", enqueued))
	}
	return nil
}

// lineIsStale reports whether the line has any active future cruise and
// none priced since the cutoff.
func (s *Scheduler) lineIsStale(ctx context.Context, line catalogdomain.CruiseLine, cutoff time.Time) (bool, error) {
	cruises, err := s.repo.ListActiveFuture(ctx, s.db, line.ID, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("list cruises for line %s: %w", line.Code, err)
	}
	if len(cruises) == 0 {
		return false, nil
	}
	for _, cruise := range cruises {
		if cruise.LastPricedAt != nil && cruise.LastPricedAt.After(cutoff) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scheduler) HistoryPurgeJob(ctx context.Context) error {
	_, err := s.recorder.Purge(ctx, s.db)
	return err
}
