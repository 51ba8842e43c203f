package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/clock"
	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	"github.com/harborlabs/cruisesync/internal/sync/history"
	"github.com/harborlabs/cruisesync/internal/traveltek"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome reports what one document merge did.
type Outcome struct {
	Created bool
	Updated bool
	// ActuallyChanged is true when the replacement price-line set differs
	// in value from what was stored before.
	ActuallyChanged bool
	PriceLines      int
}

// Engine upserts one fetched cruise document into the store. Each merge
// runs in a single transaction scoped to that cruise.
type Engine struct {
	db       *gorm.DB
	repo     catalogdomain.Repository
	recorder *history.Recorder
	clock    clock.Clock
	log      *zap.Logger
}

func NewEngine(db *gorm.DB, repo catalogdomain.Repository, recorder *history.Recorder, c clock.Clock, log *zap.Logger) *Engine {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Engine{db: db, repo: repo, recorder: recorder, clock: c, log: log.Named("merge")}
}

// Merge applies the document under the given line. The caller holds the
// line's partition lock, so no other writer can touch this cruise.
func (e *Engine) Merge(ctx context.Context, line *catalogdomain.CruiseLine, doc *traveltek.Document, batchID string) (Outcome, error) {
	var outcome Outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = e.mergeTx(ctx, tx, line, doc, batchID)
		return txErr
	})
	if err != nil {
		return Outcome{}, err
	}
	obsmetrics.Sync().AddPriceLines(outcome.PriceLines)
	return outcome, nil
}

func (e *Engine) mergeTx(ctx context.Context, tx *gorm.DB, line *catalogdomain.CruiseLine, doc *traveltek.Document, batchID string) (Outcome, error) {
	existing, err := e.repo.FindCruiseByFeedID(ctx, tx, line.ID, doc.CruiseID)
	if err != nil {
		return Outcome{}, fmt.Errorf("find cruise %s: %w", doc.CruiseID, err)
	}

	newLines := buildPriceLines(doc)

	if existing == nil {
		cruise, err := e.buildCruise(ctx, tx, line, doc)
		if err != nil {
			return Outcome{}, err
		}
		if err := e.repo.InsertCruise(ctx, tx, cruise); err != nil {
			return Outcome{}, fmt.Errorf("insert cruise %s: %w", doc.CruiseID, err)
		}
		if err := e.repo.ReplacePriceLines(ctx, tx, cruise.ID, newLines); err != nil {
			return Outcome{}, fmt.Errorf("insert price lines for %s: %w", doc.CruiseID, err)
		}
		if err := e.upsertCheapest(ctx, tx, cruise.ID, doc); err != nil {
			return Outcome{}, err
		}
		return Outcome{Created: true, ActuallyChanged: len(newLines) > 0, PriceLines: len(newLines)}, nil
	}

	oldLines, err := e.repo.ListPriceLines(ctx, tx, existing.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list price lines for %s: %w", doc.CruiseID, err)
	}

	// losing one audit row beats blocking price freshness
	if _, err := e.recorder.Capture(ctx, tx, existing.ID, oldLines, batchID, history.ChangeReasonWebhook); err != nil {
		e.log.Warn("price history capture failed, merging anyway",
			zap.String("feed_cruise_id", doc.CruiseID),
			zap.Error(err))
	}

	if err := e.repo.ReplacePriceLines(ctx, tx, existing.ID, newLines); err != nil {
		return Outcome{}, fmt.Errorf("replace price lines for %s: %w", doc.CruiseID, err)
	}

	if err := e.refreshCruise(ctx, tx, existing, line, doc); err != nil {
		return Outcome{}, err
	}
	if err := e.upsertCheapest(ctx, tx, existing.ID, doc); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Updated:         true,
		ActuallyChanged: !linesEqual(oldLines, newLines),
		PriceLines:      len(newLines),
	}, nil
}

// buildCruise maps the document into a new Cruise row, creating referenced
// lookup rows as needed.
func (e *Engine) buildCruise(ctx context.Context, tx *gorm.DB, line *catalogdomain.CruiseLine, doc *traveltek.Document) (*catalogdomain.Cruise, error) {
	shipName := doc.ShipName
	if shipName == "" {
		shipName = doc.ShipCode
	}
	ship, err := e.repo.GetOrCreateShip(ctx, tx, line.ID, doc.ShipCode, shipName)
	if err != nil {
		return nil, fmt.Errorf("resolve ship %s: %w", doc.ShipCode, err)
	}

	sail, err := doc.Sail()
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	cruise := &catalogdomain.Cruise{
		LineID:       line.ID,
		ShipID:       ship.ID,
		FeedCruiseID: doc.CruiseID,
		Name:         doc.Name,
		SailDate:     sail,
		ReturnDate:   doc.Return(),
		Nights:       doc.Nights,
		RegionCodes:  strings.Join(doc.RegionCodes, ","),
		PortCodes:    strings.Join(doc.PortCodes, ","),
		Itinerary:    datatypes.JSON(doc.Itinerary),
		Active:       true,
		LastPricedAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if doc.EmbarkPort != "" {
		port, err := e.repo.GetOrCreatePort(ctx, tx, doc.EmbarkPort, doc.EmbarkPort)
		if err != nil {
			return nil, fmt.Errorf("resolve port %s: %w", doc.EmbarkPort, err)
		}
		cruise.EmbarkPortID = &port.ID
	}
	for _, code := range doc.RegionCodes {
		if _, err := e.repo.GetOrCreateRegion(ctx, tx, code, code); err != nil {
			return nil, fmt.Errorf("resolve region %s: %w", code, err)
		}
	}
	return cruise, nil
}

// refreshCruise updates the mutable fields of an existing cruise.
func (e *Engine) refreshCruise(ctx context.Context, tx *gorm.DB, cruise *catalogdomain.Cruise, line *catalogdomain.CruiseLine, doc *traveltek.Document) error {
	sail, err := doc.Sail()
	if err != nil {
		return err
	}
	now := e.clock.Now()

	if doc.Name != "" {
		cruise.Name = doc.Name
	}
	cruise.SailDate = sail
	cruise.ReturnDate = doc.Return()
	if doc.Nights > 0 {
		cruise.Nights = doc.Nights
	}
	cruise.RegionCodes = strings.Join(doc.RegionCodes, ",")
	cruise.PortCodes = strings.Join(doc.PortCodes, ",")
	if len(doc.Itinerary) > 0 {
		cruise.Itinerary = datatypes.JSON(doc.Itinerary)
	}
	if doc.EmbarkPort != "" {
		port, err := e.repo.GetOrCreatePort(ctx, tx, doc.EmbarkPort, doc.EmbarkPort)
		if err != nil {
			return fmt.Errorf("resolve port %s: %w", doc.EmbarkPort, err)
		}
		cruise.EmbarkPortID = &port.ID
	}
	cruise.LastPricedAt = &now
	cruise.UpdatedAt = now

	if err := e.repo.UpdateCruise(ctx, tx, cruise); err != nil {
		return fmt.Errorf("update cruise %s: %w", doc.CruiseID, err)
	}
	return nil
}

// upsertCheapest recomputes the denormalized cheapest row from the price
// grid, falling back to the feed's own cheapest block when the grid is
// empty.
func (e *Engine) upsertCheapest(ctx context.Context, tx *gorm.DB, cruiseID snowflake.ID, doc *traveltek.Document) error {
	extracted := doc.ExtractPriceLines()
	byClass := traveltek.CheapestByClass(extracted)

	row := &catalogdomain.CheapestPrice{
		CruiseID:   cruiseID,
		Interior:   byClass[traveltek.CabinInterior],
		Oceanview:  byClass[traveltek.CabinOceanview],
		Balcony:    byClass[traveltek.CabinBalcony],
		Suite:      byClass[traveltek.CabinSuite],
		ComputedAt: e.clock.Now(),
	}
	if len(extracted) == 0 && doc.Cheapest != nil {
		row.Interior = doc.Cheapest.Inside.Decimal()
		row.Oceanview = doc.Cheapest.Outside.Decimal()
		row.Balcony = doc.Cheapest.Balcony.Decimal()
		row.Suite = doc.Cheapest.Suite.Decimal()
	}

	if err := e.repo.UpsertCheapestPrice(ctx, tx, row); err != nil {
		return fmt.Errorf("upsert cheapest prices: %w", err)
	}
	return nil
}

// buildPriceLines flattens the document's price grid into rows. Entries
// without a base or adult price were already dropped during extraction.
func buildPriceLines(doc *traveltek.Document) []catalogdomain.PriceLine {
	extracted := doc.ExtractPriceLines()
	lines := make([]catalogdomain.PriceLine, 0, len(extracted))
	for _, entry := range extracted {
		lines = append(lines, catalogdomain.PriceLine{
			RateCode:      entry.RateCode,
			CabinCode:     entry.CabinCode,
			OccupancyCode: entry.OccupancyCode,
			BasePrice:     entry.Fields.Price.Decimal(),
			AdultPrice:    entry.Fields.AdultPrice.Decimal(),
			ChildPrice:    entry.Fields.ChildPrice.Decimal(),
			InfantPrice:   entry.Fields.InfantPrice.Decimal(),
			Taxes:         entry.Fields.Taxes.Decimal(),
			NCF:           entry.Fields.NCF.Decimal(),
			Gratuity:      entry.Fields.Gratuity.Decimal(),
			Fuel:          entry.Fields.Fuel.Decimal(),
			PortCharges:   entry.Fields.PortCharges.Decimal(),
			GovtFees:      entry.Fields.GovtFees.Decimal(),
			TotalPrice:    entry.Total,
		})
	}
	return lines
}

// linesEqual compares two price-line sets by key and monetary value.
func linesEqual(old, new []catalogdomain.PriceLine) bool {
	if len(old) != len(new) {
		return false
	}
	byKey := make(map[catalogdomain.PriceLineKey]catalogdomain.PriceLine, len(old))
	for _, line := range old {
		byKey[line.Key()] = line
	}
	for _, line := range new {
		prev, ok := byKey[line.Key()]
		if !ok {
			return false
		}
		if !decimalsEqual(prev.BasePrice, line.BasePrice) ||
			!decimalsEqual(prev.AdultPrice, line.AdultPrice) ||
			!decimalsEqual(prev.ChildPrice, line.ChildPrice) ||
			!decimalsEqual(prev.InfantPrice, line.InfantPrice) ||
			!decimalsEqual(prev.Taxes, line.Taxes) ||
			!decimalsEqual(prev.NCF, line.NCF) ||
			!decimalsEqual(prev.Gratuity, line.Gratuity) ||
			!decimalsEqual(prev.Fuel, line.Fuel) ||
			!decimalsEqual(prev.PortCharges, line.PortCharges) ||
			!decimalsEqual(prev.GovtFees, line.GovtFees) {
			return false
		}
	}
	return true
}

func decimalsEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
