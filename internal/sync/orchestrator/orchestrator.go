package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/dedup"
	"github.com/harborlabs/cruisesync/internal/lock"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	"github.com/harborlabs/cruisesync/internal/pause"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/harborlabs/cruisesync/internal/sync/fetcher"
	"github.com/harborlabs/cruisesync/internal/sync/merge"
	"github.com/harborlabs/cruisesync/internal/sync/report"
	"github.com/harborlabs/cruisesync/internal/sync/selection"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnqueueStatus is the ack returned to the webhook caller.
type EnqueueStatus string

const (
	EnqueueQueued       EnqueueStatus = "queued"
	EnqueueDeduplicated EnqueueStatus = "deduplicated"
	EnqueueDeferred     EnqueueStatus = "deferred"
)

// Orchestrator owns the webhook queue and runs one line sync per event:
// pause gate, partition lock, selection, fetch, merge, report.
type Orchestrator struct {
	db       *gorm.DB
	repo     catalogdomain.Repository
	selector *selection.Engine
	fetcher  *fetcher.Fetcher
	merger   *merge.Engine
	reporter *report.Reporter
	locker   *lock.Locker
	gate     *pause.Gate
	dedup    *dedup.Window
	tuning   *config.SyncTuningHolder
	clock    clock.Clock
	log      *zap.Logger
	tracer   trace.Tracer

	queue chan syncdomain.IngestEvent
	wg    sync.WaitGroup
}

type Deps struct {
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

func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystemClock()
	}
	tuning := deps.Tuning.Get()
	return &Orchestrator{
		db:       deps.DB,
		repo:     deps.Repo,
		selector: deps.Selector,
		fetcher:  deps.Fetcher,
		merger:   deps.Merger,
		reporter: deps.Reporter,
		locker:   deps.Locker,
		gate:     deps.Gate,
		dedup:    dedup.NewWindow(tuning.DedupWindow, deps.Clock),
		tuning:   deps.Tuning,
		clock:    deps.Clock,
		log:      deps.Log.Named("orchestrator"),
		tracer:   otel.Tracer("cruisesync/orchestrator"),
		queue:    make(chan syncdomain.IngestEvent, tuning.EventQueueSize),
	}
}

// Enqueue accepts one webhook event. Duplicates inside the dedup window
// are dropped; a full queue defers instead of blocking the caller.
func (o *Orchestrator) Enqueue(event syncdomain.IngestEvent) EnqueueStatus {
	metrics := obsmetrics.Sync()
	if o.dedup.Observe(event.LineCode) {
		metrics.IncEventDeduplicated()
		o.log.Info("duplicate webhook suppressed",
			zap.String("line_code", event.LineCode),
			zap.String("event_id", event.EventID))
		return EnqueueDeduplicated
	}
	select {
	case o.queue <- event:
		metrics.IncEventQueued()
		return EnqueueQueued
	default:
		// the supplier retries; forget the dedup mark so the retry
		// is not mistaken for a duplicate
		o.dedup.Forget(event.LineCode)
		metrics.IncEventDeferred()
		o.log.Warn("event queue full, deferring",
			zap.String("line_code", event.LineCode),
			zap.String("event_id", event.EventID))
		return EnqueueDeferred
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled;
// Wait blocks until in-flight runs finish.
func (o *Orchestrator) Start(ctx context.Context) {
	workers := o.tuning.Get().WorkerCount
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
}

func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	log := o.log.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-o.queue:
			log.Info("processing webhook event",
				zap.String("line_code", event.LineCode),
				zap.String("event_id", event.EventID))
			o.Run(ctx, event)
		}
	}
}

// Run executes one full line sync. Every exit path produces a report.
func (o *Orchestrator) Run(ctx context.Context, event syncdomain.IngestEvent) report.Summary {
	tuning := o.tuning.Get()
	batchID := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("line_code", event.LineCode),
		attribute.String("batch_id", batchID),
	))
	defer span.End()

	result := &syncdomain.ProcessingResult{
		LineCode:  event.LineCode,
		BatchID:   batchID,
		StartedAt: o.clock.Now(),
	}

	if o.gate.IsPaused(ctx) {
		result.Status = syncdomain.RunStatusPaused
		return o.finish(ctx, span, result)
	}

	acquired, err := o.locker.Acquire(ctx, event.LineCode, batchID, tuning.LockTTL)
	if err != nil || !acquired {
		// another worker already holds this line; its run covers the
		// same upstream refresh
		result.Status = syncdomain.RunStatusDeferred
		return o.finish(ctx, span, result)
	}
	defer o.locker.Release(context.WithoutCancel(ctx), event.LineCode, batchID)

	line, err := o.repo.FindLineByCode(ctx, o.db, event.LineCode)
	if err != nil {
		result.Status = syncdomain.RunStatusCompleted
		result.AddError("", syncdomain.ErrorKindDatabase, err)
		return o.finish(ctx, span, result)
	}
	if line == nil || !line.Active {
		o.log.Warn("webhook for unknown or inactive line",
			zap.String("line_code", event.LineCode))
		result.Status = syncdomain.RunStatusCompleted
		return o.finish(ctx, span, result)
	}

	sel, err := o.selector.Select(ctx, line.ID, line.Code, tuning.RecencyWindow, tuning.MaxCandidates)
	if err != nil {
		result.Status = syncdomain.RunStatusCompleted
		result.AddError("", syncdomain.ErrorKindDatabase, err)
		return o.finish(ctx, span, result)
	}
	result.TotalSelected = len(sel.Candidates)
	result.Skipped = sel.Skipped

	runCtx, cancel := context.WithTimeout(ctx, runTimeout(tuning, len(sel.Candidates)))
	defer cancel()

	var mu sync.Mutex
	o.fetcher.Run(runCtx, sel.Candidates, func(outcome syncdomain.FetchOutcome) {
		mu.Lock()
		defer mu.Unlock()
		o.applyOutcome(runCtx, line, outcome, batchID, result)
	})

	result.Status = syncdomain.RunStatusCompleted
	return o.finish(ctx, span, result)
}

// applyOutcome merges one fetched document into the store, or books the
// failure. Called under the run mutex.
func (o *Orchestrator) applyOutcome(ctx context.Context, line *catalogdomain.CruiseLine, outcome syncdomain.FetchOutcome, batchID string, result *syncdomain.ProcessingResult) {
	if !outcome.OK() {
		result.Failed++
		result.AddError(outcome.Candidate.FeedCruiseID, outcome.ErrorKind, outcome.Err)
		return
	}

	merged, err := o.merger.Merge(ctx, line, outcome.Document, batchID)
	if err != nil {
		kind := syncdomain.ErrorKindDatabase
		if errors.Is(err, context.DeadlineExceeded) {
			kind = syncdomain.ErrorKindTimeout
		}
		result.Failed++
		result.AddError(outcome.Candidate.FeedCruiseID, kind, err)
		o.log.Error("merge failed",
			zap.String("feed_cruise_id", outcome.Candidate.FeedCruiseID),
			zap.Error(err))
		return
	}

	if merged.Created {
		result.Created++
	}
	if merged.Updated {
		result.Updated++
	}
	if merged.ActuallyChanged {
		result.ActuallyUpdated++
	}
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, result *syncdomain.ProcessingResult) report.Summary {
	result.FinishedAt = o.clock.Now()
	summary := o.reporter.Report(ctx, result)
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.String("health", string(summary.Health)),
		attribute.Int("actually_updated", result.ActuallyUpdated),
		attribute.Int("failed", result.Failed),
	)
	return summary
}

// runTimeout scales the per-run deadline with the candidate count so big
// lines are not cut off by a flat limit.
func runTimeout(tuning config.SyncTuning, candidates int) time.Duration {
	scaled := time.Duration(candidates) * tuning.RunTimeoutPerItem
	if scaled < tuning.RunTimeoutFloor {
		return tuning.RunTimeoutFloor
	}
	return scaled
}
