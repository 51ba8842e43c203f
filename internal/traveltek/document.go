package traveltek

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Document is a single cruise file from the supplier feed. The upstream
// schema is loose: numbers arrive as numbers, numeric strings, empty strings
// or nulls depending on the line.
type Document struct {
	CruiseID   string `json:"cruiseid"`
	Name       string `json:"name"`
	SailDate   string `json:"saildate"`
	ReturnDate string `json:"returndate"`
	Nights     int    `json:"nights"`

	LineCode   string `json:"lineid"`
	ShipCode   string `json:"shipid"`
	ShipName   string `json:"shipname"`
	EmbarkPort string `json:"startportid"`

	RegionCodes []string        `json:"regionids"`
	PortCodes   []string        `json:"portids"`
	Itinerary   json.RawMessage `json:"itinerary"`

	// Prices nests rate code -> cabin code -> occupancy code -> fields.
	Prices map[string]map[string]map[string]PriceFields `json:"prices"`

	// Cheapest is an optional precomputed block some lines ship. It is
	// advisory only; the merge engine recomputes from the price grid.
	Cheapest *CheapestBlock `json:"cheapest,omitempty"`
}

type PriceFields struct {
	Price       Amount `json:"price"`
	AdultPrice  Amount `json:"adultprice"`
	ChildPrice  Amount `json:"childprice"`
	InfantPrice Amount `json:"infantprice"`
	Taxes       Amount `json:"taxes"`
	NCF         Amount `json:"ncf"`
	Gratuity    Amount `json:"gratuity"`
	Fuel        Amount `json:"fuel"`
	PortCharges Amount `json:"portcharges"`
	GovtFees    Amount `json:"govtfees"`
}

type CheapestBlock struct {
	Inside    Amount `json:"inside"`
	Outside   Amount `json:"outside"`
	Balcony   Amount `json:"balcony"`
	Suite     Amount `json:"suite"`
}

// Amount is a nullable money value. Empty string, null and garbage all
// decode to nil: zero is a valid price, absence is not.
type Amount struct {
	dec *decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		a.dec = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			a.dec = nil
			return nil
		}
		trimmed = strings.TrimSpace(s)
		if trimmed == "" {
			a.dec = nil
			return nil
		}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		a.dec = nil
		return nil
	}
	a.dec = &d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.dec == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.dec)
}

// Decimal returns the parsed value or nil.
func (a Amount) Decimal() *decimal.Decimal {
	if a.dec == nil {
		return nil
	}
	d := *a.dec
	return &d
}

// AmountFrom wraps a decimal, for tests and derived values.
func AmountFrom(d decimal.Decimal) Amount {
	return Amount{dec: &d}
}

// Parse decodes and minimally validates a feed document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode cruise document: %w", err)
	}
	if strings.TrimSpace(doc.CruiseID) == "" {
		return nil, fmt.Errorf("cruise document missing cruiseid")
	}
	if _, err := doc.Sail(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Sail returns the parsed sail date.
func (d *Document) Sail() (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(d.SailDate))
	if err != nil {
		return time.Time{}, fmt.Errorf("cruise %s: bad saildate %q: %w", d.CruiseID, d.SailDate, err)
	}
	return t.UTC(), nil
}

// Return returns the parsed return date, nil when absent or malformed.
func (d *Document) Return() *time.Time {
	raw := strings.TrimSpace(d.ReturnDate)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}
