// Package valuation implements the v0 ARV heuristic: comp filtering, median
// price-per-square-foot baseline, bed/bath adjustment, confidence scoring and
// profit scenarios. Everything here is pure and safe to call concurrently.
package valuation

import (
	"arvscout/config"
	"arvscout/internal/models"
)

// Version identifies the heuristic implemented by this package.
const Version = "v0"

// EstimateARVAndProfit runs the full engine for one subject.
func EstimateARVAndProfit(subject models.SubjectProperty, comps []models.ComparableSale, arvCfg config.ArvConfig, profitCfg config.ProfitConfig) (*models.Valuation, error) {
	estimate, dealRatio, err := EstimateARV(subject, comps, arvCfg)
	if err != nil {
		return nil, err
	}

	return &models.Valuation{
		Estimate:  estimate,
		DealRatio: dealRatio,
		Profit:    ProfitScenarios(estimate.ArvValue, *subject.ListPrice, profitCfg),
	}, nil
}
