// Package output writes valuation rows as CSV or XLSX with a fixed column order.
package output

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"arvscout/internal/models"
)

// TimestampLayout formats the ts_utc column.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Columns is the header row, in output order.
var Columns = []string{
	"zpid", "address", "city", "state", "zip", "latitude", "longitude", "url",
	"status", "dom", "hoa",
	"list_price", "beds", "baths", "sqft", "lot_sqft", "year_built", "home_type",
	"arv_estimate", "arv_ppsf", "comp_count", "comp_radius_mi", "comp_window_months", "arv_confidence",
	"list_to_arv_pct",
	"profit_conservative", "profit_median", "profit_optimistic",
	"search_geo", "page", "ts_utc",
	"note",
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func money(v float64) float64 { return round(v, 2) }

func ptr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func moneyPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return money(*v)
}

func str(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Values returns one cell per column: string, float64, int or nil for an
// empty cell. Rounding is applied here so every writer agrees.
func Values(r models.ValuationRow) []any {
	l, s := r.Listing, r.Subject

	lat, lon := ptr(l.Latitude), ptr(l.Longitude)
	if lat == nil {
		lat = ptr(s.Latitude)
	}
	if lon == nil {
		lon = ptr(s.Longitude)
	}
	zpid := l.ZPID
	if zpid == "" {
		zpid = s.ZPID
	}

	out := []any{
		str(zpid), str(l.Address), str(l.City), str(l.State), str(l.Zipcode), lat, lon, str(l.URL),
		str(l.Status), intPtr(l.DOM), moneyPtr(l.HOA),
		moneyPtr(s.ListPrice), ptr(s.Beds), ptr(s.Baths), ptr(s.Sqft), ptr(s.LotSqft), intPtr(s.YearBuilt), str(s.HomeType),
	}

	var arv, ppsf, count, confidence, ratio, pc, pm, po any
	if v := r.Valuation; v != nil {
		if v.Estimate.ArvValue != 0 {
			arv = money(v.Estimate.ArvValue)
		}
		if v.Estimate.BaselinePPSF != 0 {
			ppsf = money(v.Estimate.BaselinePPSF)
		}
		count = v.Estimate.CompCount
		confidence = round(v.Estimate.Confidence, 3)
		ratio = round(v.DealRatio, 4)
		if p := v.Profit; p != nil {
			pc, pm, po = money(p.Conservative), money(p.Median), money(p.Optimistic)
		}
	}

	var ts any
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(TimestampLayout)
	}

	return append(out,
		arv, ppsf, count, r.CompRadiusMi, r.CompWindowMonths, confidence,
		ratio,
		pc, pm, po,
		str(r.SearchGeo), r.Page, ts,
		str(r.Note),
	)
}

// Record formats Values as strings.
func Record(r models.ValuationRow) []string {
	vals := Values(r)
	rec := make([]string, len(vals))
	for i, v := range vals {
		rec[i] = formatCell(v)
	}
	return rec
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	default:
		return ""
	}
}
