package config

import (
	"errors"
	"fmt"
)

// ConfidenceMethodNIQR scores confidence from sample count and IQR dispersion.
const ConfidenceMethodNIQR = "n_iqr"

// PPSFMethodMedian uses the median PPSF of the comp set as baseline.
const PPSFMethodMedian = "median"

// Filters describes which listings the batch run searches for.
type Filters struct {
	Geos               []string `yaml:"geos" json:"geos"`
	Status             []string `yaml:"status" json:"status"`
	HomeTypes          []string `yaml:"home_types" json:"home_types"`
	PriceMin           *float64 `yaml:"price_min" json:"price_min"`
	PriceMax           *float64 `yaml:"price_max" json:"price_max"`
	BedsMin            *int     `yaml:"beds_min" json:"beds_min"`
	BathsMin           *int     `yaml:"baths_min" json:"baths_min"`
	MinSqft            *int     `yaml:"min_sqft" json:"min_sqft"`
	MinLotSqft         *int     `yaml:"min_lot_sqft" json:"min_lot_sqft"`
	YearBuiltMin       *int     `yaml:"year_built_min" json:"year_built_min"`
	MaxDOM             *int     `yaml:"max_dom" json:"max_dom"`
	IncludePending     bool     `yaml:"include_pending" json:"include_pending"`
	HOAMax             *float64 `yaml:"hoa_max" json:"hoa_max"`
	PriceReductionOnly bool     `yaml:"price_reduction_only" json:"price_reduction_only"`
	PageCap            int      `yaml:"page_cap" json:"page_cap"`
}

// Adjustments are the bed/bath step sizes and the lot-size cap.
type Adjustments struct {
	BedStepPct        float64 `yaml:"bed_step_pct" json:"bed_step_pct"`
	BathStepPct       float64 `yaml:"bath_step_pct" json:"bath_step_pct"`
	LotSizeCapRatio   float64 `yaml:"lot_size_cap_ratio" json:"lot_size_cap_ratio"`
	AgeConditionProxy bool    `yaml:"age_condition_proxy" json:"age_condition_proxy"`
}

type ArvConfig struct {
	CompRadiusMi               float64     `yaml:"comp_radius_mi" json:"comp_radius_mi"`
	CompWindowMonths           int         `yaml:"comp_window_months" json:"comp_window_months"`
	ExtendWindowIfInsufficient int         `yaml:"extend_window_if_insufficient" json:"extend_window_if_insufficient"`
	MinComps                   int         `yaml:"min_comps" json:"min_comps"`
	PPSFMethod                 string      `yaml:"ppsf_method" json:"ppsf_method"`
	Adjustments                Adjustments `yaml:"adjustments" json:"adjustments"`
	ConfidenceMethod           string      `yaml:"confidence_method" json:"confidence_method"`
}

// ProfitConfig holds cost assumptions. RehabBudget nil disables profit scenarios.
type ProfitConfig struct {
	RehabBudget        *float64 `yaml:"rehab_budget" json:"rehab_budget"`
	ClosingCostsPct    float64  `yaml:"closing_costs_pct" json:"closing_costs_pct"`
	SellingCostsPct    float64  `yaml:"selling_costs_pct" json:"selling_costs_pct"`
	MiscBufferPct      float64  `yaml:"misc_buffer_pct" json:"misc_buffer_pct"`
	MoePctConservative float64  `yaml:"moe_pct_conservative" json:"moe_pct_conservative"`
	MoePctOptimistic   float64  `yaml:"moe_pct_optimistic" json:"moe_pct_optimistic"`
}

type DealScreen struct {
	MaxListToArvPct *float64 `yaml:"max_list_to_arv_pct" json:"max_list_to_arv_pct"`
}

// CacheConfig controls the two response cache namespaces.
type CacheConfig struct {
	ClearBeforeRun  bool `yaml:"clear_before_run" json:"clear_before_run"`
	ClearLLMCache   bool `yaml:"clear_llm_cache" json:"clear_llm_cache"`
	ClearAPICache   bool `yaml:"clear_api_cache" json:"clear_api_cache"`
	LLMCacheEnabled bool `yaml:"llm_cache_enabled" json:"llm_cache_enabled"`
	APICacheEnabled bool `yaml:"api_cache_enabled" json:"api_cache_enabled"`
	CacheTTLHours   int  `yaml:"cache_ttl_hours" json:"cache_ttl_hours"`
}

type RateLimitConfig struct {
	DailyLimit int `yaml:"daily_limit" json:"daily_limit"`
}

type LLMConfig struct {
	Model       string  `yaml:"model" json:"model"`
	MaxTokens   *int    `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// AppConfig is the resolved run configuration.
type AppConfig struct {
	Filters      Filters         `yaml:"filters" json:"filters"`
	ArvConfig    ArvConfig       `yaml:"arv_config" json:"arv_config"`
	ProfitConfig ProfitConfig    `yaml:"profit_config" json:"profit_config"`
	DealScreen   *DealScreen     `yaml:"deal_screen" json:"deal_screen"`
	CacheConfig  CacheConfig     `yaml:"cache_config" json:"cache_config"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	LLMConfig    LLMConfig       `yaml:"llm_config" json:"llm_config"`
	APIMapping   APIMapping      `yaml:"api_mapping" json:"api_mapping"`
	Prompt       string          `yaml:"prompt" json:"prompt,omitempty"`
}

func DefaultArvConfig() ArvConfig {
	return ArvConfig{
		CompRadiusMi:               0.75,
		CompWindowMonths:           6,
		ExtendWindowIfInsufficient: 12,
		MinComps:                   3,
		PPSFMethod:                 PPSFMethodMedian,
		Adjustments: Adjustments{
			BedStepPct:      0.04,
			BathStepPct:     0.05,
			LotSizeCapRatio: 2.0,
		},
		ConfidenceMethod: ConfidenceMethodNIQR,
	}
}

func DefaultProfitConfig() ProfitConfig {
	return ProfitConfig{
		ClosingCostsPct:    0.03,
		SellingCostsPct:    0.06,
		MiscBufferPct:      0.02,
		MoePctConservative: 0.10,
		MoePctOptimistic:   0.03,
	}
}

// DefaultAppConfig returns a run configuration with every documented default applied.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Filters: Filters{
			Status:    []string{"FOR_SALE"},
			HomeTypes: []string{"SINGLE_FAMILY"},
			PageCap:   5,
		},
		ArvConfig:    DefaultArvConfig(),
		ProfitConfig: DefaultProfitConfig(),
		CacheConfig: CacheConfig{
			LLMCacheEnabled: true,
			APICacheEnabled: false,
			CacheTTLHours:   2400,
		},
		RateLimit: RateLimitConfig{DailyLimit: 100},
		LLMConfig: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0,
		},
		APIMapping: DefaultAPIMapping(),
	}
}

// Validate reports every invalid setting at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if err := c.ArvConfig.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ProfitConfig.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Filters.PageCap < 0 {
		errs = append(errs, fmt.Errorf("filters.page_cap must not be negative, got %d", c.Filters.PageCap))
	}
	if c.CacheConfig.CacheTTLHours < 0 {
		errs = append(errs, fmt.Errorf("cache_config.cache_ttl_hours must not be negative, got %d", c.CacheConfig.CacheTTLHours))
	}
	if c.RateLimit.DailyLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.daily_limit must not be negative, got %d", c.RateLimit.DailyLimit))
	}
	if c.DealScreen != nil && c.DealScreen.MaxListToArvPct != nil && *c.DealScreen.MaxListToArvPct <= 0 {
		errs = append(errs, fmt.Errorf("deal_screen.max_list_to_arv_pct must be positive"))
	}

	return errors.Join(errs...)
}

func (c ArvConfig) Validate() error {
	var errs []error
	if c.MinComps < 1 {
		errs = append(errs, fmt.Errorf("arv_config.min_comps must be at least 1, got %d", c.MinComps))
	}
	if c.ConfidenceMethod != "" && c.ConfidenceMethod != ConfidenceMethodNIQR {
		errs = append(errs, fmt.Errorf("arv_config.confidence_method %q is not supported", c.ConfidenceMethod))
	}
	if c.PPSFMethod != "" && c.PPSFMethod != PPSFMethodMedian {
		errs = append(errs, fmt.Errorf("arv_config.ppsf_method %q is not supported", c.PPSFMethod))
	}
	if c.CompRadiusMi < 0 {
		errs = append(errs, fmt.Errorf("arv_config.comp_radius_mi must not be negative"))
	}
	if c.Adjustments.LotSizeCapRatio < 0 {
		errs = append(errs, fmt.Errorf("arv_config.adjustments.lot_size_cap_ratio must not be negative"))
	}
	return errors.Join(errs...)
}

func (c ProfitConfig) Validate() error {
	pcts := map[string]float64{
		"closing_costs_pct":    c.ClosingCostsPct,
		"selling_costs_pct":    c.SellingCostsPct,
		"misc_buffer_pct":      c.MiscBufferPct,
		"moe_pct_conservative": c.MoePctConservative,
		"moe_pct_optimistic":   c.MoePctOptimistic,
	}
	var errs []error
	for _, name := range []string{"closing_costs_pct", "selling_costs_pct", "misc_buffer_pct", "moe_pct_conservative", "moe_pct_optimistic"} {
		if v := pcts[name]; v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("profit_config.%s must be within [0,1], got %v", name, v))
		}
	}
	if c.RehabBudget != nil && *c.RehabBudget < 0 {
		errs = append(errs, fmt.Errorf("profit_config.rehab_budget must not be negative"))
	}
	return errors.Join(errs...)
}
