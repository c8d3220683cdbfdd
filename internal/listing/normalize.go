package listing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"arvscout/internal/models"
	"arvscout/internal/stats"
)

// Synonym lists, most preferred first.
var (
	subjectPriceKeys = []string{"price", "listPrice"}
	compPriceKeys    = []string{"price", "soldPrice", "sale_price"}
	bedsKeys         = []string{"bedrooms", "beds"}
	bathsKeys        = []string{"bathrooms", "baths"}
	sqftKeys         = []string{"livingArea", "sqft", "living_area"}
	lotKeys          = []string{"lotAreaValue", "lotSize", "lotArea", "lot_area"}
	homeTypeKeys     = []string{"homeType", "home_type"}
	yearBuiltKeys    = []string{"yearBuilt"}
	zpidKeys         = []string{"zpid", "zpid_str", "id"}
)

// FirstPresent returns the value of the first key in keys that is present
// and non-empty in raw.
func FirstPresent(raw models.RawRecord, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func floatField(raw models.RawRecord, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := FirstPresent(raw, k)
		if !ok {
			continue
		}
		if f := stats.FloatPtr(v); f != nil {
			return f
		}
	}
	return nil
}

func intField(raw models.RawRecord, keys ...string) *int {
	f := floatField(raw, keys...)
	if f == nil {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}

func stringField(raw models.RawRecord, keys ...string) string {
	v, ok := FirstPresent(raw, keys...)
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// ZPID returns the listing identifier as a string, or "" when none is present.
func ZPID(raw models.RawRecord) string {
	return stringField(raw, zpidKeys...)
}

// NormalizeSubject maps a details or search record onto SubjectProperty.
func NormalizeSubject(raw models.RawRecord) models.SubjectProperty {
	return models.SubjectProperty{
		ZPID:      ZPID(raw),
		ListPrice: floatField(raw, subjectPriceKeys...),
		Beds:      floatField(raw, bedsKeys...),
		Baths:     floatField(raw, bathsKeys...),
		Sqft:      floatField(raw, sqftKeys...),
		LotSqft:   floatField(raw, lotKeys...),
		HomeType:  stringField(raw, homeTypeKeys...),
		YearBuilt: intField(raw, yearBuiltKeys...),
		Latitude:  floatField(raw, "latitude"),
		Longitude: floatField(raw, "longitude"),
	}
}

// NormalizeComp maps one upstream comp record onto ComparableSale.
func NormalizeComp(raw models.RawRecord) models.ComparableSale {
	return models.ComparableSale{
		Price:     floatField(raw, compPriceKeys...),
		Sqft:      floatField(raw, sqftKeys...),
		LotSqft:   floatField(raw, lotKeys...),
		Beds:      floatField(raw, bedsKeys...),
		Baths:     floatField(raw, bathsKeys...),
		HomeType:  stringField(raw, homeTypeKeys...),
		Latitude:  floatField(raw, "latitude"),
		Longitude: floatField(raw, "longitude"),
	}
}

func NormalizeComps(raw []models.RawRecord) []models.ComparableSale {
	out := make([]models.ComparableSale, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeComp(r))
	}
	return out
}

// NormalizeListing builds the identification columns, preferring the details
// record and falling back to the search summary field by field.
func NormalizeListing(details, summary models.RawRecord) models.ListingDetails {
	details = flattenAddress(details)
	summary = flattenAddress(summary)

	str := func(detailKeys, summaryKeys []string) string {
		if s := stringField(details, detailKeys...); s != "" {
			return s
		}
		return stringField(summary, summaryKeys...)
	}
	num := func(detailKeys, summaryKeys []string) *float64 {
		if f := floatField(details, detailKeys...); f != nil {
			return f
		}
		return floatField(summary, summaryKeys...)
	}

	out := models.ListingDetails{
		ZPID:      str(zpidKeys, zpidKeys),
		Address:   str([]string{"address"}, []string{"address"}),
		City:      str([]string{"city"}, []string{"city"}),
		State:     str([]string{"state"}, []string{"state"}),
		Zipcode:   str([]string{"zipcode", "zip"}, []string{"zipcode", "zip"}),
		URL:       str([]string{"url", "hdpUrl"}, []string{"detailUrl", "url"}),
		Status:    str([]string{"homeStatus"}, []string{"status", "homeStatus", "listingStatus"}),
		HOA:       num([]string{"hoaFee", "monthlyHoaFee"}, []string{"hoa"}),
		Latitude:  num([]string{"latitude"}, []string{"latitude"}),
		Longitude: num([]string{"longitude"}, []string{"longitude"}),
	}
	if dom := num([]string{"daysOnZillow"}, []string{"dom", "daysOnZillow"}); dom != nil {
		n := int(math.Round(*dom))
		out.DOM = &n
	}
	return out
}

// MergeSubject fills fields missing from the details record with the search
// summary's values.
func MergeSubject(details, summary models.RawRecord) models.SubjectProperty {
	s := NormalizeSubject(details)
	if len(summary) == 0 {
		return s
	}
	fb := NormalizeSubject(summary)

	if s.ZPID == "" {
		s.ZPID = fb.ZPID
	}
	pick := func(a, b *float64) *float64 {
		if a != nil {
			return a
		}
		return b
	}
	s.ListPrice = pick(s.ListPrice, fb.ListPrice)
	s.Beds = pick(s.Beds, fb.Beds)
	s.Baths = pick(s.Baths, fb.Baths)
	s.Sqft = pick(s.Sqft, fb.Sqft)
	s.LotSqft = pick(s.LotSqft, fb.LotSqft)
	s.Latitude = pick(s.Latitude, fb.Latitude)
	s.Longitude = pick(s.Longitude, fb.Longitude)
	if s.HomeType == "" {
		s.HomeType = fb.HomeType
	}
	if s.YearBuilt == nil {
		s.YearBuilt = fb.YearBuilt
	}
	return s
}

// flattenAddress lifts a nested address object into top-level street, city,
// state and zipcode keys without overwriting existing values.
func flattenAddress(raw models.RawRecord) models.RawRecord {
	addr, ok := raw["address"].(map[string]any)
	if !ok {
		return raw
	}
	out := make(models.RawRecord, len(raw)+4)
	for k, v := range raw {
		out[k] = v
	}
	out["address"] = addr["streetAddress"]
	for _, k := range []string{"city", "state", "zipcode"} {
		if _, exists := FirstPresent(out, k); !exists {
			out[k] = addr[k]
		}
	}
	return out
}
