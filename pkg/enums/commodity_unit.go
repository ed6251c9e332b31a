package enums

import "fmt"

// CommodityUnit maps to the commodity_unit_enum enum in Postgres.
type CommodityUnit string

const (
	CommodityUnitKilogram CommodityUnit = "kg"
	CommodityUnitTonne    CommodityUnit = "tonne"
	CommodityUnitLiter    CommodityUnit = "liter"
	CommodityUnitBag      CommodityUnit = "bag"
)

var validCommodityUnits = []CommodityUnit{
	CommodityUnitKilogram,
	CommodityUnitTonne,
	CommodityUnitLiter,
	CommodityUnitBag,
}

// String implements fmt.Stringer.
func (u CommodityUnit) String() string {
	return string(u)
}

// IsValid reports whether the unit is recognized.
func (u CommodityUnit) IsValid() bool {
	for _, candidate := range validCommodityUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseCommodityUnit converts a raw string into a CommodityUnit.
func ParseCommodityUnit(value string) (CommodityUnit, error) {
	for _, candidate := range validCommodityUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commodity unit %q", value)
}
