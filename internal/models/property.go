package models

import "time"

// SubjectProperty is the canonical record of the property being valued.
// Every numeric field is optional; the valuation engine enforces the ones it needs.
type SubjectProperty struct {
	ZPID      string   `json:"zpid"`
	ListPrice *float64 `json:"list_price"`
	Beds      *float64 `json:"beds"`
	Baths     *float64 `json:"baths"`
	Sqft      *float64 `json:"sqft"`
	LotSqft   *float64 `json:"lot_sqft"`
	HomeType  string   `json:"home_type"`
	YearBuilt *int     `json:"year_built"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ComparableSale is one candidate comp after field-name normalization.
type ComparableSale struct {
	Price     *float64 `json:"price"`
	Sqft      *float64 `json:"sqft"`
	LotSqft   *float64 `json:"lot_sqft"`
	Beds      *float64 `json:"beds"`
	Baths     *float64 `json:"baths"`
	HomeType  string   `json:"home_type"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ArvEstimate is the derived after-repair value for one input set.
type ArvEstimate struct {
	ArvValue     float64 `json:"arv_value"`
	BaselinePPSF float64 `json:"baseline_ppsf"`
	CompCount    int     `json:"comp_count"`
	Confidence   float64 `json:"confidence"`
}

// ProfitScenario holds the three profit figures. A nil *ProfitScenario means
// no rehab budget was configured.
type ProfitScenario struct {
	Conservative float64 `json:"conservative"`
	Median       float64 `json:"median"`
	Optimistic   float64 `json:"optimistic"`
}

// Valuation is the full engine output for one subject.
type Valuation struct {
	Estimate  ArvEstimate     `json:"estimate"`
	DealRatio float64         `json:"deal_ratio"`
	Profit    *ProfitScenario `json:"profit"`
}

// ListingDetails carries the identification columns of an output row.
type ListingDetails struct {
	ZPID      string   `json:"zpid"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Zipcode   string   `json:"zipcode"`
	URL       string   `json:"url"`
	Status    string   `json:"status"`
	DOM       *int     `json:"dom"`
	HOA       *float64 `json:"hoa"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ValuationRow is one line of pipeline output.
type ValuationRow struct {
	Listing          ListingDetails
	Subject          SubjectProperty
	Valuation        *Valuation
	CompRadiusMi     float64
	CompWindowMonths int
	SearchGeo        string
	Page             int
	Timestamp        time.Time
	Note             string
}
