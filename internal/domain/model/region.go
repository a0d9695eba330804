package model

import "strings"

// Region is a pricing zone derived from a country code.
type Region string

const (
	RegionIN   Region = "IN"
	RegionEU   Region = "EU"
	RegionINTL Region = "INTL"
)

var Regions = []Region{RegionIN, RegionEU, RegionINTL}

var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// ResolveRegion maps an ISO country code to its pricing region. Unknown or
// empty input falls back to INTL.
func ResolveRegion(countryCode string) Region {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if cc == "IN" {
		return RegionIN
	}
	if _, ok := euCountries[cc]; ok {
		return RegionEU
	}
	return RegionINTL
}

func ParseRegion(s string) (Region, bool) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Region) Valid() bool {
	switch r {
	case RegionIN, RegionEU, RegionINTL:
		return true
	}
	return false
}

// Currency returns the only currency a price entry in this region may use.
func (r Region) Currency() string {
	switch r {
	case RegionIN:
		return "INR"
	case RegionEU:
		return "EUR"
	default:
		return "USD"
	}
}

// Geo is the server-derived location of the current request.
type Geo struct {
	CountryCode string `json:"countryCode"`
	Region      Region `json:"region"`
	Source      string `json:"source,omitempty"`
}

func NewGeo(countryCode, source string) Geo {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	return Geo{CountryCode: cc, Region: ResolveRegion(cc), Source: source}
}
