package history

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	"github.com/harborlabs/cruisesync/internal/config"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangeReasonWebhook tags snapshots taken by the webhook pipeline.
const ChangeReasonWebhook = "webhook_update"

// Recorder captures a cruise's price lines into the append-only history
// table just before the merge engine overwrites them.
type Recorder struct {
	repo   catalogdomain.Repository
	tuning *config.SyncTuningHolder
	clock  clock.Clock
	log    *zap.Logger
}

func NewRecorder(repo catalogdomain.Repository, tuning *config.SyncTuningHolder, c clock.Clock, log *zap.Logger) *Recorder {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Recorder{repo: repo, tuning: tuning, clock: c, log: log.Named("history")}
}

// Capture snapshots every existing price line of the cruise. The first
// snapshot ever seen for a key is an insert, later ones are updates with a
// delta against the previous snapshot. Returns the number of rows written;
// errors are the caller's to log, never to block the merge on.
func (r *Recorder) Capture(ctx context.Context, db *gorm.DB, cruiseID snowflake.ID, lines []catalogdomain.PriceLine, batchID, reason string) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	prior, err := r.repo.LatestHistoryByKey(ctx, db, cruiseID)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	rows := make([]catalogdomain.PriceHistory, 0, len(lines))
	for _, line := range lines {
		row := catalogdomain.PriceHistory{
			CruiseID:      cruiseID,
			RateCode:      line.RateCode,
			CabinCode:     line.CabinCode,
			OccupancyCode: line.OccupancyCode,
			BasePrice:     line.BasePrice,
			AdultPrice:    line.AdultPrice,
			Taxes:         line.Taxes,
			TotalPrice:    line.TotalPrice,
			ChangeType:    catalogdomain.ChangeTypeInsert,
			ChangeReason:  reason,
			BatchID:       batchID,
			CapturedAt:    now,
		}
		if previous, ok := prior[line.Key()]; ok {
			row.ChangeType = catalogdomain.ChangeTypeUpdate
			row.PriceChange, row.PriceChangePercent = delta(previous.TotalPrice, line.TotalPrice)
		}
		rows = append(rows, row)
	}

	if err := r.repo.InsertHistory(ctx, db, rows); err != nil {
		return 0, err
	}
	obsmetrics.Sync().AddHistoryRows(len(rows))
	return len(rows), nil
}

// Purge drops history rows older than the retention window.
func (r *Recorder) Purge(ctx context.Context, db *gorm.DB) (int64, error) {
	retention := r.tuning.Get().HistoryRetention
	cutoff := r.clock.Now().Add(-retention)
	purged, err := r.repo.PurgeHistoryBefore(ctx, db, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		r.log.Info("purged price history", zap.Int64("rows", purged), zap.Time("cutoff", cutoff))
	}
	return purged, nil
}

// delta returns absolute and percentage change between two totals, nil
// when either side is unknown.
func delta(previous, current *decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if previous == nil || current == nil {
		return nil, nil
	}
	change := current.Sub(*previous)
	var percent *decimal.Decimal
	if !previous.IsZero() {
		p := change.Div(*previous).Mul(decimal.NewFromInt(100)).Round(4)
		percent = &p
	}
	return &change, percent
}
