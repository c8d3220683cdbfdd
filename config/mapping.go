package config

import "strings"

// APIMapping translates internal filter vocabulary into upstream query parameters.
type APIMapping struct {
	StatusMap   map[string]string `yaml:"status_map" json:"status_map"`
	HomeTypeMap map[string]string `yaml:"home_type_map" json:"home_type_map"`
	ParamMap    map[string]string `yaml:"param_map" json:"param_map"`
}

// DefaultAPIMapping returns the mapping for the RapidAPI Zillow endpoints.
func DefaultAPIMapping() APIMapping {
	return APIMapping{
		StatusMap: map[string]string{
			"FOR_SALE":      "ForSale",
			"SOLD":          "Sold",
			"RECENTLY_SOLD": "RecentlySold",
			"PENDING":       "Pending",
		},
		HomeTypeMap: map[string]string{
			"SINGLE_FAMILY": "SingleFamily",
			"CONDO":         "Condo",
			"TOWNHOUSE":     "Townhouse",
			"MULTI_FAMILY":  "MultiFamily",
			"LOT":           "Lot",
			"MOBILE":        "Mobile",
			"FARM":          "Farm",
		},
		ParamMap: map[string]string{
			"price_min":      "minPrice",
			"price_max":      "maxPrice",
			"beds_min":       "beds",
			"baths_min":      "baths",
			"min_sqft":       "minSqft",
			"min_lot_sqft":   "minLotSize",
			"year_built_min": "minYearBuilt",
			"max_dom":        "daysOnMarket",
			"hoa_max":        "maxHOA",
		},
	}
}

// Status returns the upstream spelling of the given statuses joined by commas.
// Unknown values pass through unchanged.
func (m APIMapping) Status(values []string) string {
	return joinMapped(m.StatusMap, values)
}

// HomeType returns the upstream spelling of the given home types joined by commas.
func (m APIMapping) HomeType(values []string) string {
	return joinMapped(m.HomeTypeMap, values)
}

// Param returns the upstream parameter name for an internal filter name.
func (m APIMapping) Param(name string) string {
	if v, ok := m.ParamMap[name]; ok {
		return v
	}
	return name
}

func joinMapped(table map[string]string, values []string) string {
	mapped := make([]string, 0, len(values))
	for _, v := range values {
		if up, ok := table[v]; ok {
			mapped = append(mapped, up)
			continue
		}
		mapped = append(mapped, v)
	}
	return strings.Join(mapped, ",")
}
