package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) catalogdomain.Repository {
	return &repo{genID: genID}
}

func (r *repo) FindLineByCode(ctx context.Context, gdb *gorm.DB, code string) (*catalogdomain.CruiseLine, error) {
	var line catalogdomain.CruiseLine
	err := gdb.WithContext(ctx).Where("code = ?", code).First(&line).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *repo) ListActiveLines(ctx context.Context, gdb *gorm.DB) ([]catalogdomain.CruiseLine, error) {
	var lines []catalogdomain.CruiseLine
	err := gdb.WithContext(ctx).Where("active = ?", true).Order("code").Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) GetOrCreateShip(ctx context.Context, gdb *gorm.DB, lineID snowflake.ID, code, name string) (*catalogdomain.Ship, error) {
	var ship catalogdomain.Ship
	err := gdb.WithContext(ctx).Where("line_id = ? AND code = ?", lineID, code).First(&ship).Error
	if err == nil {
		return &ship, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	ship = catalogdomain.Ship{
		ID:     r.genID.Generate(),
		LineID: lineID,
		Code:   code,
		Name:   name,
	}
	if err := gdb.WithContext(ctx).Create(&ship).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			// lost a race with a concurrent creator for another line's run
			var existing catalogdomain.Ship
			if ferr := gdb.WithContext(ctx).Where("line_id = ? AND code = ?", lineID, code).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &ship, nil
}

func (r *repo) ListShipsByLine(ctx context.Context, gdb *gorm.DB, lineID snowflake.ID) ([]catalogdomain.Ship, error) {
	var ships []catalogdomain.Ship
	err := gdb.WithContext(ctx).Where("line_id = ?", lineID).Find(&ships).Error
	if err != nil {
		return nil, err
	}
	return ships, nil
}

func (r *repo) GetOrCreatePort(ctx context.Context, gdb *gorm.DB, code, name string) (*catalogdomain.Port, error) {
	var port catalogdomain.Port
	err := gdb.WithContext(ctx).Where("code = ?", code).First(&port).Error
	if err == nil {
		return &port, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	port = catalogdomain.Port{ID: r.genID.Generate(), Code: code, Name: name}
	if err := gdb.WithContext(ctx).Create(&port).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			var existing catalogdomain.Port
			if ferr := gdb.WithContext(ctx).Where("code = ?", code).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &port, nil
}

func (r *repo) GetOrCreateRegion(ctx context.Context, gdb *gorm.DB, code, name string) (*catalogdomain.Region, error) {
	var region catalogdomain.Region
	err := gdb.WithContext(ctx).Where("code = ?", code).First(&region).Error
	if err == nil {
		return &region, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	region = catalogdomain.Region{ID: r.genID.Generate(), Code: code, Name: name}
	if err := gdb.WithContext(ctx).Create(&region).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			var existing catalogdomain.Region
			if ferr := gdb.WithContext(ctx).Where("code = ?", code).First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &region, nil
}

func (r *repo) ListActiveFuture(ctx context.Context, gdb *gorm.DB, lineID snowflake.ID, after time.Time) ([]catalogdomain.Cruise, error) {
	var cruises []catalogdomain.Cruise
	err := gdb.WithContext(ctx).
		Where("line_id = ?", lineID).
		Where("active = ?", true).
		Where("sail_date > ?", after).
		Order("sail_date ASC").
		Find(&cruises).Error
	if err != nil {
		return nil, err
	}
	return cruises, nil
}

func (r *repo) FindCruiseByFeedID(ctx context.Context, gdb *gorm.DB, lineID snowflake.ID, feedCruiseID string) (*catalogdomain.Cruise, error) {
	var cruise catalogdomain.Cruise
	err := gdb.WithContext(ctx).
		Where("line_id = ? AND feed_cruise_id = ?", lineID, feedCruiseID).
		First(&cruise).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &cruise, nil
}

func (r *repo) InsertCruise(ctx context.Context, gdb *gorm.DB, cruise *catalogdomain.Cruise) error {
	if cruise.ID == 0 {
		cruise.ID = r.genID.Generate()
	}
	return gdb.WithContext(ctx).Create(cruise).Error
}

func (r *repo) UpdateCruise(ctx context.Context, gdb *gorm.DB, cruise *catalogdomain.Cruise) error {
	return gdb.WithContext(ctx).
		Model(&catalogdomain.Cruise{}).
		Where("id = ?", cruise.ID).
		Updates(map[string]interface{}{
			"name":           cruise.Name,
			"sail_date":      cruise.SailDate,
			"return_date":    cruise.ReturnDate,
			"nights":         cruise.Nights,
			"embark_port_id": cruise.EmbarkPortID,
			"region_codes":   cruise.RegionCodes,
			"port_codes":     cruise.PortCodes,
			"itinerary":      cruise.Itinerary,
			"last_priced_at": cruise.LastPricedAt,
			"updated_at":     cruise.UpdatedAt,
		}).Error
}

func (r *repo) ListPriceLines(ctx context.Context, gdb *gorm.DB, cruiseID snowflake.ID) ([]catalogdomain.PriceLine, error) {
	var lines []catalogdomain.PriceLine
	err := gdb.WithContext(ctx).
		Where("cruise_id = ?", cruiseID).
		Order("rate_code, cabin_code, occupancy_code").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) ReplacePriceLines(ctx context.Context, gdb *gorm.DB, cruiseID snowflake.ID, lines []catalogdomain.PriceLine) error {
	if err := gdb.WithContext(ctx).
		Where("cruise_id = ?", cruiseID).
		Delete(&catalogdomain.PriceLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		if lines[i].ID == 0 {
			lines[i].ID = r.genID.Generate()
		}
		lines[i].CruiseID = cruiseID
	}
	return gdb.WithContext(ctx).CreateInBatches(lines, 200).Error
}

func (r *repo) UpsertCheapestPrice(ctx context.Context, gdb *gorm.DB, row *catalogdomain.CheapestPrice) error {
	var existing catalogdomain.CheapestPrice
	err := gdb.WithContext(ctx).Where("cruise_id = ?", row.CruiseID).First(&existing).Error
	if db.IsNotFound(err) {
		if row.ID == 0 {
			row.ID = r.genID.Generate()
		}
		return gdb.WithContext(ctx).Create(row).Error
	}
	if err != nil {
		return err
	}
	return gdb.WithContext(ctx).
		Model(&catalogdomain.CheapestPrice{}).
		Where("cruise_id = ?", row.CruiseID).
		Updates(map[string]interface{}{
			"interior":    row.Interior,
			"oceanview":   row.Oceanview,
			"balcony":     row.Balcony,
			"suite":       row.Suite,
			"computed_at": row.ComputedAt,
		}).Error
}

func (r *repo) InsertHistory(ctx context.Context, gdb *gorm.DB, rows []catalogdomain.PriceHistory) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == 0 {
			rows[i].ID = r.genID.Generate()
		}
	}
	return gdb.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (r *repo) LatestHistoryByKey(ctx context.Context, gdb *gorm.DB, cruiseID snowflake.ID) (map[catalogdomain.PriceLineKey]catalogdomain.PriceHistory, error) {
	var rows []catalogdomain.PriceHistory
	err := gdb.WithContext(ctx).
		Where("cruise_id = ?", cruiseID).
		Order("captured_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[catalogdomain.PriceLineKey]catalogdomain.PriceHistory, len(rows))
	for _, row := range rows {
		latest[row.Key()] = row // rows are in ascending capture order
	}
	return latest, nil
}

func (r *repo) PurgeHistoryBefore(ctx context.Context, gdb *gorm.DB, cutoff time.Time) (int64, error) {
	res := gdb.WithContext(ctx).
		Where("captured_at < ?", cutoff).
		Delete(&catalogdomain.PriceHistory{})
	return res.RowsAffected, res.Error
}
