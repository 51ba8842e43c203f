package traveltek

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CabinClass buckets cabin codes for the denormalized cheapest-price row.
type CabinClass string

const (
	CabinInterior  CabinClass = "interior"
	CabinOceanview CabinClass = "oceanview"
	CabinBalcony   CabinClass = "balcony"
	CabinSuite     CabinClass = "suite"
	CabinUnknown   CabinClass = "unknown"
)

// ClassifyCabin maps a supplier cabin code prefix to a cabin class. The
// feed uses I*/O*/B*/S* prefixes with a handful of line-specific aliases.
func ClassifyCabin(cabinCode string) CabinClass {
	code := strings.ToUpper(strings.TrimSpace(cabinCode))
	if code == "" {
		return CabinUnknown
	}
	switch code[0] {
	case 'I':
		return CabinInterior
	case 'O':
		return CabinOceanview
	case 'B':
		return CabinBalcony
	case 'S':
		return CabinSuite
	}
	// mini-suite is the one alias that does not share a class prefix
	if strings.HasPrefix(code, "MS") {
		return CabinSuite
	}
	return CabinUnknown
}

// ExtractedLine is one flattened rate/cabin/occupancy entry retained from
// the price grid.
type ExtractedLine struct {
	RateCode      string
	CabinCode     string
	OccupancyCode string
	Fields        PriceFields
	Total         *decimal.Decimal
}

// ExtractPriceLines flattens the nested price grid, keeping only entries
// with a non-nil base or adult price.
func (d *Document) ExtractPriceLines() []ExtractedLine {
	var out []ExtractedLine
	for rateCode, cabins := range d.Prices {
		for cabinCode, occupancies := range cabins {
			for occCode, fields := range occupancies {
				if fields.Price.Decimal() == nil && fields.AdultPrice.Decimal() == nil {
					continue
				}
				out = append(out, ExtractedLine{
					RateCode:      rateCode,
					CabinCode:     cabinCode,
					OccupancyCode: occCode,
					Fields:        fields,
					Total:         TotalPrice(fields),
				})
			}
		}
	}
	return out
}

// TotalPrice sums base plus all pass-through fees. A missing component
// counts as zero in the sum; the stored fields stay nil.
func TotalPrice(f PriceFields) *decimal.Decimal {
	base := f.Price.Decimal()
	if base == nil {
		base = f.AdultPrice.Decimal()
	}
	if base == nil {
		return nil
	}
	total := *base
	for _, component := range []*decimal.Decimal{
		f.Taxes.Decimal(),
		f.NCF.Decimal(),
		f.Gratuity.Decimal(),
		f.Fuel.Decimal(),
		f.PortCharges.Decimal(),
		f.GovtFees.Decimal(),
	} {
		if component != nil {
			total = total.Add(*component)
		}
	}
	return &total
}

// CheapestByClass returns the minimum valid per-person price per cabin
// class across all rate codes.
func CheapestByClass(lines []ExtractedLine) map[CabinClass]*decimal.Decimal {
	cheapest := make(map[CabinClass]*decimal.Decimal, 4)
	for _, line := range lines {
		class := ClassifyCabin(line.CabinCode)
		if class == CabinUnknown {
			continue
		}
		price := line.Fields.Price.Decimal()
		if price == nil {
			price = line.Fields.AdultPrice.Decimal()
		}
		if price == nil || price.Sign() < 0 {
			continue
		}
		if current, ok := cheapest[class]; !ok || price.LessThan(*current) {
			cheapest[class] = price
		}
	}
	return cheapest
}
