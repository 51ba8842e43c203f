package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const acquirePollEvery = 200 * time.Millisecond

// Pool maintains a small fixed set of persistent sessions. Callers block
// until a slot frees up; the pool never grows past its size.
type Pool struct {
	dialer Dialer
	log    *zap.Logger
	clock  clock.Clock

	mu    sync.Mutex
	slots []*slot

	// breaker state, guarded by mu
	consecutiveFailures int
	breakerOpenUntil    time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
	idleThreshold    time.Duration
	keepAliveEvery   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type slot struct {
	sess     Session
	inUse    bool
	lastUsed time.Time
}

// Lease is a checked-out session. Callers must Release it; Fail marks the
// session dead so it is redialed on next use.
type Lease struct {
	pool *Pool
	slot *slot
	Sess Session
}

func NewPool(cfg config.FTPConfig, dialer Dialer, log *zap.Logger, c clock.Clock) *Pool {
	if c == nil {
		c = clock.NewSystemClock()
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	p := &Pool{
		dialer:           dialer,
		log:              log.Named("ftppool"),
		clock:            c,
		slots:            make([]*slot, size),
		breakerThreshold: cfg.BreakerFailures,
		breakerCooldown:  cfg.BreakerCooldown,
		idleThreshold:    cfg.IdleThreshold,
		keepAliveEvery:   cfg.KeepAliveEvery,
		stop:             make(chan struct{}),
	}
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	if p.breakerThreshold <= 0 {
		p.breakerThreshold = 5
	}
	if p.breakerCooldown <= 0 {
		p.breakerCooldown = 2 * time.Minute
	}
	return p
}

// Start launches the keep-alive loop.
func (p *Pool) Start() {
	if p.keepAliveEvery <= 0 {
		return
	}
	go p.keepAliveLoop()
}

// Acquire returns a leased session, blocking with polling until a slot is
// idle. While the breaker is open it returns ErrChannelUnavailable at once.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	for {
		lease, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollEvery):
		}
	}
}

// tryAcquire claims an idle slot or returns (nil, nil) when all are busy.
func (p *Pool) tryAcquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.breakerOpen() {
		p.mu.Unlock()
		return nil, ErrChannelUnavailable
	}
	var claimed *slot
	for _, s := range p.slots {
		if !s.inUse {
			s.inUse = true
			claimed = s
			break
		}
	}
	p.mu.Unlock()

	if claimed == nil {
		return nil, nil
	}

	sess, err := p.validate(ctx, claimed)
	if err != nil {
		p.mu.Lock()
		claimed.inUse = false
		p.recordFailure()
		open := p.breakerOpen()
		p.mu.Unlock()
		if open {
			return nil, ErrChannelUnavailable
		}
		return nil, err
	}

	p.mu.Lock()
	p.consecutiveFailures = 0
	p.mu.Unlock()
	return &Lease{pool: p, slot: claimed, Sess: sess}, nil
}

// validate probes the slot's session and transparently redials a dead one.
func (p *Pool) validate(ctx context.Context, s *slot) (Session, error) {
	if s.sess != nil {
		if err := s.sess.Noop(ctx); err == nil {
			return s.sess, nil
		}
		p.log.Debug("session failed liveness probe, redialing")
		_ = s.sess.Close()
		s.sess = nil
	}
	sess, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	s.sess = sess
	return sess, nil
}

// Release returns the session to the pool.
func (l *Lease) Release() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	l.slot.inUse = false
	l.slot.lastUsed = l.pool.clock.Now()
}

// Fail returns the slot with its session discarded and counts a failure
// toward the breaker.
func (l *Lease) Fail() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	if l.slot.sess != nil {
		_ = l.slot.sess.Close()
		l.slot.sess = nil
	}
	l.slot.inUse = false
	l.pool.recordFailure()
}

// recordFailure counts a connection failure and opens the breaker past the
// threshold. Caller holds mu.
func (p *Pool) recordFailure() {
	p.consecutiveFailures++
	if p.consecutiveFailures >= p.breakerThreshold {
		p.breakerOpenUntil = p.clock.Now().Add(p.breakerCooldown)
		p.log.Warn("circuit breaker open, transfer channel marked unavailable",
			zap.Int("consecutive_failures", p.consecutiveFailures),
			zap.Duration("cooldown", p.breakerCooldown))
		p.consecutiveFailures = 0
	}
}

// breakerOpen reports breaker state. Caller holds mu.
func (p *Pool) breakerOpen() bool {
	return p.clock.Now().Before(p.breakerOpenUntil)
}

// BreakerOpen reports whether the pool is refusing sessions.
func (p *Pool) BreakerOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breakerOpen()
}

// InUse reports how many slots are currently leased.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.inUse {
			n++
		}
	}
	return n
}

// CloseIdle tears down idle sessions. The memory supervisor calls this
// under pressure; sessions are lazily redialed afterwards.
func (p *Pool) CloseIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	closed := 0
	for _, s := range p.slots {
		if !s.inUse && s.sess != nil {
			_ = s.sess.Close()
			s.sess = nil
			closed++
		}
	}
	return closed
}

// Close stops the keep-alive loop and tears down every idle session.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.CloseIdle()
}

func (p *Pool) keepAliveLoop() {
	ticker := time.NewTicker(p.keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pingIdle()
		}
	}
}

// pingIdle probes sessions idle past the threshold so the server does not
// silently drop them.
func (p *Pool) pingIdle() {
	now := p.clock.Now()
	p.mu.Lock()
	var stale []*slot
	for _, s := range p.slots {
		if !s.inUse && s.sess != nil && now.Sub(s.lastUsed) > p.idleThreshold {
			s.inUse = true // reserve while probing
			stale = append(stale, s)
		}
	}
	p.mu.Unlock()

	for _, s := range stale {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.sess.Noop(ctx)
		cancel()

		p.mu.Lock()
		if err != nil {
			p.log.Debug("idle session dropped by server", zap.Error(err))
			_ = s.sess.Close()
			s.sess = nil
		} else {
			s.lastUsed = p.clock.Now()
		}
		s.inUse = false
		p.mu.Unlock()
	}
}

func providePool(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, c clock.Clock) *Pool {
	pool := NewPool(cfg.FTP, NewSFTPDialer(cfg.FTP), log, c)
	pool.Start()
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool
}

var Module = fx.Module("transfer",
	fx.Provide(providePool),
)
