package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindLineByCode(ctx context.Context, db *gorm.DB, code string) (*CruiseLine, error)
	ListActiveLines(ctx context.Context, db *gorm.DB) ([]CruiseLine, error)

	GetOrCreateShip(ctx context.Context, db *gorm.DB, lineID snowflake.ID, code, name string) (*Ship, error)
	ListShipsByLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) ([]Ship, error)
	GetOrCreatePort(ctx context.Context, db *gorm.DB, code, name string) (*Port, error)
	GetOrCreateRegion(ctx context.Context, db *gorm.DB, code, name string) (*Region, error)

	// ListActiveFuture returns all active cruises for the line sailing after
	// the given instant. Input to the selection engine.
	ListActiveFuture(ctx context.Context, db *gorm.DB, lineID snowflake.ID, after time.Time) ([]Cruise, error)

	FindCruiseByFeedID(ctx context.Context, db *gorm.DB, lineID snowflake.ID, feedCruiseID string) (*Cruise, error)
	InsertCruise(ctx context.Context, db *gorm.DB, cruise *Cruise) error
	UpdateCruise(ctx context.Context, db *gorm.DB, cruise *Cruise) error

	ListPriceLines(ctx context.Context, db *gorm.DB, cruiseID snowflake.ID) ([]PriceLine, error)
	// ReplacePriceLines deletes the cruise's full price-line set and inserts
	// the replacement, scoped to that cruise only.
	ReplacePriceLines(ctx context.Context, db *gorm.DB, cruiseID snowflake.ID, lines []PriceLine) error

	UpsertCheapestPrice(ctx context.Context, db *gorm.DB, row *CheapestPrice) error

	InsertHistory(ctx context.Context, db *gorm.DB, rows []PriceHistory) error
	// LatestHistoryByKey returns, per price-line key, the most recent history
	// row for the cruise.
	LatestHistoryByKey(ctx context.Context, db *gorm.DB, cruiseID snowflake.ID) (map[PriceLineKey]PriceHistory, error)
	PurgeHistoryBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
