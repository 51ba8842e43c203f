package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/harborlabs/cruisesync/internal/config"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	"github.com/harborlabs/cruisesync/internal/retry"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"github.com/harborlabs/cruisesync/internal/traveltek"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Gate lets the memory supervisor hold fetching between batches. Wait
// returns once fetching may proceed, or with ctx's error.
type Gate interface {
	Wait(ctx context.Context) error
}

// Fetcher downloads one file per candidate through the session pool.
// Downloads run in bounded concurrent batches; batches group into
// mega-batches separated by a long delay so a line with thousands of stale
// sailings cannot flatten the supplier's server.
type Fetcher struct {
	pool   *transfer.Pool
	tuning *config.SyncTuningHolder
	policy retry.Policy
	gate   Gate
	log    *zap.Logger
}

func New(pool *transfer.Pool, tuning *config.SyncTuningHolder, policy retry.Policy, gate Gate, log *zap.Logger) *Fetcher {
	return &Fetcher{
		pool:   pool,
		tuning: tuning,
		policy: policy,
		gate:   gate,
		log:    log.Named("fetcher"),
	}
}

// Run fetches every candidate and hands each outcome to handle as soon as
// it resolves. Per-file failures never abort the batch; an open circuit
// breaker resolves all remaining candidates as channel_unavailable.
func (f *Fetcher) Run(ctx context.Context, candidates []syncdomain.SyncCandidate, handle func(syncdomain.FetchOutcome)) {
	tuning := f.tuning.Get()
	metrics := obsmetrics.Sync()

	aborted := false
	sinceRest := 0
	for start := 0; start < len(candidates); start += tuning.BatchSize {
		end := start + tuning.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		if aborted || f.drained(ctx) {
			for _, c := range batch {
				handle(f.failedOutcome(ctx, c))
			}
			continue
		}

		if f.gate != nil {
			if err := f.gate.Wait(ctx); err != nil {
				aborted = true
				for _, c := range batch {
					handle(f.failedOutcome(ctx, c))
				}
				continue
			}
		}

		if f.runBatch(ctx, batch, tuning, handle) {
			aborted = true
		}

		metrics.SetPoolInUse(f.pool.InUse())
		metrics.SetBreakerOpen(f.pool.BreakerOpen())

		// long pause once a mega-batch worth of files has gone out since
		// the last rest; batch size need not divide the mega-batch size
		sinceRest += len(batch)
		if end < len(candidates) && tuning.MegaBatchSize > 0 && sinceRest >= tuning.MegaBatchSize {
			sinceRest = 0
			f.log.Info("mega-batch boundary, pausing",
				zap.Int("fetched", end),
				zap.Duration("delay", tuning.MegaBatchDelay))
			select {
			case <-ctx.Done():
			case <-time.After(tuning.MegaBatchDelay):
			}
		}
	}
}

// runBatch fans the batch out over bounded goroutines, staggering launches
// to smooth load. Returns true when the channel became unavailable.
func (f *Fetcher) runBatch(ctx context.Context, batch []syncdomain.SyncCandidate, tuning config.SyncTuning, handle func(syncdomain.FetchOutcome)) bool {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(tuning.BatchConcurrency)

	channelDown := make(chan struct{}, len(batch))
	for i, candidate := range batch {
		if i > 0 && tuning.PerItemDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(tuning.PerItemDelay):
			}
		}
		candidate := candidate
		group.Go(func() error {
			outcome := f.fetchOne(groupCtx, candidate, tuning)
			handle(outcome)
			obsmetrics.Sync().IncFetchOutcome(f.outcomeKind(outcome))
			if outcome.ErrorKind == syncdomain.ErrorKindChannelUnavailable {
				channelDown <- struct{}{}
			}
			return nil
		})
	}
	_ = group.Wait()

	select {
	case <-channelDown:
		return true
	default:
		return false
	}
}

func (f *Fetcher) outcomeKind(o syncdomain.FetchOutcome) string {
	if o.OK() {
		return "success"
	}
	return string(o.ErrorKind)
}

// fetchOne tries each candidate remote path in order, classifying whatever
// goes wrong. Connection-class errors are retried under the shared policy;
// absence and parse failures are not.
func (f *Fetcher) fetchOne(ctx context.Context, candidate syncdomain.SyncCandidate, tuning config.SyncTuning) syncdomain.FetchOutcome {
	started := time.Now()
	paths := CandidatePaths(candidate)

	var data []byte
	var lastErr error
	allMissing := true

	for _, remotePath := range paths {
		remotePath := remotePath
		err := f.policy.Do(ctx, connectionClass, func() error {
			fileCtx, cancel := context.WithTimeout(ctx, tuning.FileTimeout)
			defer cancel()
			payload, derr := f.download(fileCtx, remotePath)
			if derr != nil {
				return derr
			}
			data = payload
			return nil
		})
		if err == nil {
			allMissing = false
			lastErr = nil
			break
		}
		lastErr = err
		if !errors.Is(err, transfer.ErrNotFound) {
			allMissing = false
			break
		}
	}

	obsmetrics.Sync().ObserveFetch(time.Since(started))

	if lastErr != nil {
		kind := classify(lastErr)
		if allMissing {
			kind = f.classifyAbsence(ctx, paths[0])
		}
		return syncdomain.FetchOutcome{Candidate: candidate, ErrorKind: kind, Err: lastErr}
	}

	doc, err := traveltek.Parse(data)
	if err != nil {
		// the file arrived but is not a cruise document: upstream data
		// corruption, tracked apart from transport trouble
		return syncdomain.FetchOutcome{Candidate: candidate, ErrorKind: syncdomain.ErrorKindParse, Err: err}
	}
	return syncdomain.FetchOutcome{Candidate: candidate, Document: doc}
}

// download leases a session for the duration of one transfer.
func (f *Fetcher) download(ctx context.Context, remotePath string) ([]byte, error) {
	lease, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	data, err := lease.Sess.Download(ctx, remotePath)
	if err != nil {
		if errors.Is(err, transfer.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lease.Release()
		} else {
			lease.Fail()
		}
		return nil, err
	}
	lease.Release()
	return data, nil
}

// classifyAbsence checks whether the whole directory is missing (expected
// for unpublished future months) or just this cruise's file.
func (f *Fetcher) classifyAbsence(ctx context.Context, firstPath string) syncdomain.ErrorKind {
	lease, err := f.pool.Acquire(ctx)
	if err != nil {
		return syncdomain.ErrorKindFileNotFound
	}
	defer lease.Release()

	_, err = lease.Sess.ListDir(ctx, path.Dir(firstPath))
	if errors.Is(err, transfer.ErrNotFound) {
		return syncdomain.ErrorKindPathNotFound
	}
	return syncdomain.ErrorKindFileNotFound
}

// failedOutcome labels a candidate that was never attempted.
func (f *Fetcher) failedOutcome(ctx context.Context, candidate syncdomain.SyncCandidate) syncdomain.FetchOutcome {
	if ctx.Err() != nil {
		return syncdomain.FetchOutcome{
			Candidate: candidate,
			ErrorKind: syncdomain.ErrorKindTimeout,
			Err:       ctx.Err(),
		}
	}
	return syncdomain.FetchOutcome{
		Candidate: candidate,
		ErrorKind: syncdomain.ErrorKindChannelUnavailable,
		Err:       transfer.ErrChannelUnavailable,
	}
}

func (f *Fetcher) drained(ctx context.Context) bool {
	return ctx.Err() != nil
}

// CandidatePaths derives the remote locations to try, in order. The
// supplier partitions files by sail year/month, then line, then ship. A
// sailing published late can sit one month behind its sail date.
func CandidatePaths(c syncdomain.SyncCandidate) []string {
	sail := c.SailDate.UTC()
	prev := sail.AddDate(0, -1, 0)
	return []string{
		fmt.Sprintf("%d/%02d/%s/%s/%s.json", sail.Year(), int(sail.Month()), c.LineCode, c.ShipCode, c.FeedCruiseID),
		fmt.Sprintf("%d/%02d/%s/%s/%s.json", prev.Year(), int(prev.Month()), c.LineCode, c.ShipCode, c.FeedCruiseID),
	}
}

// classify maps a raw fetch error to its reportable kind.
func classify(err error) syncdomain.ErrorKind {
	switch {
	case errors.Is(err, transfer.ErrChannelUnavailable):
		return syncdomain.ErrorKindChannelUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return syncdomain.ErrorKindTimeout
	case errors.Is(err, transfer.ErrNotFound):
		return syncdomain.ErrorKindFileNotFound
	default:
		return syncdomain.ErrorKindConnection
	}
}

// connectionClass reports whether an error is worth retrying: transient
// transport failures are, absence and an open breaker are not.
func connectionClass(err error) bool {
	if errors.Is(err, transfer.ErrNotFound) || errors.Is(err, transfer.ErrChannelUnavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
