package selection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine decides which cruises of a line need a refresh. The supplier
// refreshes a whole line atomically, so re-downloading a recently priced
// cruise wastes transfer-channel budget: skip-if-recent trades a little
// freshness for channel pressure.
type Engine struct {
	db    *gorm.DB
	repo  catalogdomain.Repository
	clock clock.Clock
	log   *zap.Logger
}

// Result is the ordered, capped candidate list plus the skip count for
// reporting.
type Result struct {
	Candidates []syncdomain.SyncCandidate
	Skipped    int
}

func NewEngine(db *gorm.DB, repo catalogdomain.Repository, c clock.Clock, log *zap.Logger) *Engine {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Engine{db: db, repo: repo, clock: c, log: log.Named("selection")}
}

// Select returns candidates for the line in priority order. A cruise with
// no price data ever is never skipped by the recency filter.
func (e *Engine) Select(ctx context.Context, lineID snowflake.ID, lineCode string, recencyWindow time.Duration, cap int) (Result, error) {
	now := e.clock.Now()

	cruises, err := e.repo.ListActiveFuture(ctx, e.db, lineID, now)
	if err != nil {
		return Result{}, fmt.Errorf("list cruises for line %s: %w", lineCode, err)
	}

	ships, err := e.repo.ListShipsByLine(ctx, e.db, lineID)
	if err != nil {
		return Result{}, fmt.Errorf("list ships for line %s: %w", lineCode, err)
	}
	shipCodes := make(map[snowflake.ID]string, len(ships))
	for _, ship := range ships {
		shipCodes[ship.ID] = ship.Code
	}

	cutoff := now.Add(-recencyWindow)
	candidates := make([]syncdomain.SyncCandidate, 0, len(cruises))
	skipped := 0
	for _, cruise := range cruises {
		if cruise.LastPricedAt != nil && cruise.LastPricedAt.After(cutoff) {
			skipped++
			continue
		}
		candidates = append(candidates, syncdomain.SyncCandidate{
			CruiseID:     cruise.ID,
			FeedCruiseID: cruise.FeedCruiseID,
			LineCode:     lineCode,
			ShipCode:     shipCodes[cruise.ShipID],
			SailDate:     cruise.SailDate,
			HasPricing:   cruise.LastPricedAt != nil,
			LastPricedAt: cruise.LastPricedAt,
		})
	}

	if len(candidates) > cap {
		sortByPriority(candidates)
		skipped += len(candidates) - cap
		candidates = candidates[:cap]
	} else {
		sortByPriority(candidates)
	}

	e.log.Info("selection complete",
		zap.String("line", lineCode),
		zap.Int("selected", len(candidates)),
		zap.Int("skipped", skipped))

	return Result{Candidates: candidates, Skipped: skipped}, nil
}

// sortByPriority orders unpriced cruises first, then oldest price update,
// then soonest sail date. Deterministic for equal keys via feed id.
func sortByPriority(candidates []syncdomain.SyncCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasPricing != b.HasPricing {
			return !a.HasPricing
		}
		if a.HasPricing && b.HasPricing && !a.LastPricedAt.Equal(*b.LastPricedAt) {
			return a.LastPricedAt.Before(*b.LastPricedAt)
		}
		if !a.SailDate.Equal(b.SailDate) {
			return a.SailDate.Before(b.SailDate)
		}
		return a.FeedCruiseID < b.FeedCruiseID
	})
}
