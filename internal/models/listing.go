package models

// RawRecord is an upstream JSON object with unreconciled field names.
type RawRecord map[string]any

// SearchResult is one page of the upstream property search.
type SearchResult struct {
	Results          []RawRecord `json:"results"`
	TotalResultCount *int        `json:"totalResultCount,omitempty"`
}

// CompsResult is the normalized comps payload stored in the cache.
type CompsResult struct {
	Comps []RawRecord `json:"comps"`
}
