package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CruiseLine is the supplier's partition key: one line's prices always
// refresh atomically upstream.
type CruiseLine struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CruiseLine) TableName() string { return "cruise_lines" }

type Ship struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	LineID    snowflake.ID `json:"line_id" gorm:"column:line_id;not null;index"`
	Code      string       `json:"code" gorm:"type:text;not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Ship) TableName() string { return "ships" }

type Port struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Port) TableName() string { return "ports" }

type Region struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Region) TableName() string { return "regions" }

// Cruise is a single priceable sailing. FeedCruiseID is the supplier's
// stable identifier, unique within a line.
type Cruise struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	LineID       snowflake.ID   `json:"line_id" gorm:"column:line_id;not null;index:idx_cruises_line_feed,unique"`
	ShipID       snowflake.ID   `json:"ship_id" gorm:"column:ship_id;not null;index"`
	FeedCruiseID string         `json:"feed_cruise_id" gorm:"column:feed_cruise_id;type:text;not null;index:idx_cruises_line_feed,unique"`
	Name         string         `json:"name" gorm:"type:text;not null"`
	SailDate     time.Time      `json:"sail_date" gorm:"not null;index"`
	ReturnDate   *time.Time     `json:"return_date,omitempty"`
	Nights       int            `json:"nights" gorm:"not null;default:0"`
	EmbarkPortID *snowflake.ID  `json:"embark_port_id,omitempty" gorm:"column:embark_port_id"`
	RegionCodes  string         `json:"region_codes" gorm:"type:text"` // comma separated
	PortCodes    string         `json:"port_codes" gorm:"type:text"`   // comma separated, in call order
	Itinerary    datatypes.JSON `json:"itinerary,omitempty" gorm:"type:jsonb"`
	Active       bool           `json:"active" gorm:"not null;default:true;index"`
	LastPricedAt *time.Time     `json:"last_priced_at,omitempty" gorm:"index"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Cruise) TableName() string { return "cruises" }

// PriceLine is one rate/cabin/occupancy priced combination. Monetary fields
// are nullable: absence is not a zero price.
type PriceLine struct {
	ID            snowflake.ID     `json:"id" gorm:"primaryKey"`
	CruiseID      snowflake.ID     `json:"cruise_id" gorm:"column:cruise_id;not null;index:idx_price_lines_key,unique"`
	RateCode      string           `json:"rate_code" gorm:"type:text;not null;index:idx_price_lines_key,unique"`
	CabinCode     string           `json:"cabin_code" gorm:"type:text;not null;index:idx_price_lines_key,unique"`
	OccupancyCode string           `json:"occupancy_code" gorm:"type:text;not null;index:idx_price_lines_key,unique"`
	BasePrice     *decimal.Decimal `json:"base_price,omitempty" gorm:"type:decimal(12,2)"`
	AdultPrice    *decimal.Decimal `json:"adult_price,omitempty" gorm:"type:decimal(12,2)"`
	ChildPrice    *decimal.Decimal `json:"child_price,omitempty" gorm:"type:decimal(12,2)"`
	InfantPrice   *decimal.Decimal `json:"infant_price,omitempty" gorm:"type:decimal(12,2)"`
	Taxes         *decimal.Decimal `json:"taxes,omitempty" gorm:"type:decimal(12,2)"`
	NCF           *decimal.Decimal `json:"ncf,omitempty" gorm:"column:ncf;type:decimal(12,2)"`
	Gratuity      *decimal.Decimal `json:"gratuity,omitempty" gorm:"type:decimal(12,2)"`
	Fuel          *decimal.Decimal `json:"fuel,omitempty" gorm:"type:decimal(12,2)"`
	PortCharges   *decimal.Decimal `json:"port_charges,omitempty" gorm:"type:decimal(12,2)"`
	GovtFees      *decimal.Decimal `json:"govt_fees,omitempty" gorm:"column:govt_fees;type:decimal(12,2)"`
	TotalPrice    *decimal.Decimal `json:"total_price,omitempty" gorm:"type:decimal(12,2)"`
	CreatedAt     time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PriceLine) TableName() string { return "price_lines" }

// CheapestPrice is a denormalized per-cruise row so search queries never
// scan the full price_lines table.
type CheapestPrice struct {
	ID         snowflake.ID     `json:"id" gorm:"primaryKey"`
	CruiseID   snowflake.ID     `json:"cruise_id" gorm:"column:cruise_id;not null;uniqueIndex"`
	Interior   *decimal.Decimal `json:"interior,omitempty" gorm:"type:decimal(12,2)"`
	Oceanview  *decimal.Decimal `json:"oceanview,omitempty" gorm:"type:decimal(12,2)"`
	Balcony    *decimal.Decimal `json:"balcony,omitempty" gorm:"type:decimal(12,2)"`
	Suite      *decimal.Decimal `json:"suite,omitempty" gorm:"type:decimal(12,2)"`
	ComputedAt time.Time        `json:"computed_at" gorm:"not null"`
}

func (CheapestPrice) TableName() string { return "cheapest_prices" }

type ChangeType string

const (
	ChangeTypeInsert ChangeType = "insert"
	ChangeTypeUpdate ChangeType = "update"
)

// PriceHistory is an append-only snapshot of a price line taken just before
// it is overwritten. Rows are never mutated after insert.
type PriceHistory struct {
	ID                 snowflake.ID     `json:"id" gorm:"primaryKey"`
	CruiseID           snowflake.ID     `json:"cruise_id" gorm:"column:cruise_id;not null;index:idx_price_history_key"`
	RateCode           string           `json:"rate_code" gorm:"type:text;not null;index:idx_price_history_key"`
	CabinCode          string           `json:"cabin_code" gorm:"type:text;not null;index:idx_price_history_key"`
	OccupancyCode      string           `json:"occupancy_code" gorm:"type:text;not null;index:idx_price_history_key"`
	BasePrice          *decimal.Decimal `json:"base_price,omitempty" gorm:"type:decimal(12,2)"`
	AdultPrice         *decimal.Decimal `json:"adult_price,omitempty" gorm:"type:decimal(12,2)"`
	Taxes              *decimal.Decimal `json:"taxes,omitempty" gorm:"type:decimal(12,2)"`
	TotalPrice         *decimal.Decimal `json:"total_price,omitempty" gorm:"type:decimal(12,2)"`
	ChangeType         ChangeType       `json:"change_type" gorm:"type:text;not null"`
	ChangeReason       string           `json:"change_reason" gorm:"type:text;not null"`
	PriceChange        *decimal.Decimal `json:"price_change,omitempty" gorm:"type:decimal(12,2)"`
	PriceChangePercent *decimal.Decimal `json:"price_change_percent,omitempty" gorm:"type:decimal(8,4)"`
	BatchID            string           `json:"batch_id" gorm:"type:text;not null;index"`
	CapturedAt         time.Time        `json:"captured_at" gorm:"not null;index"`
}

func (PriceHistory) TableName() string { return "price_history" }

// PriceLineKey identifies one priced combination inside a cruise.
type PriceLineKey struct {
	RateCode      string
	CabinCode     string
	OccupancyCode string
}

func (p PriceLine) Key() PriceLineKey {
	return PriceLineKey{RateCode: p.RateCode, CabinCode: p.CabinCode, OccupancyCode: p.OccupancyCode}
}

func (h PriceHistory) Key() PriceLineKey {
	return PriceLineKey{RateCode: h.RateCode, CabinCode: h.CabinCode, OccupancyCode: h.OccupancyCode}
}
