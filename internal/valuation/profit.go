package valuation

import (
	"arvscout/config"
	"arvscout/internal/models"
)

// ProfitScenarios derives conservative/median/optimistic profit. It returns nil
// when no rehab budget is configured.
func ProfitScenarios(arv, listPrice float64, cfg config.ProfitConfig) *models.ProfitScenario {
	if cfg.RehabBudget == nil {
		return nil
	}

	arvMedian := arv
	arvConservative := arv * (1 - cfg.MoePctConservative)
	arvOptimistic := arv * (1 - cfg.MoePctOptimistic)

	totalCosts := TotalCosts(arvMedian, listPrice, cfg)

	return &models.ProfitScenario{
		Conservative: arvConservative - totalCosts,
		Median:       arvMedian - totalCosts,
		Optimistic:   arvOptimistic - totalCosts,
	}
}

// TotalCosts is purchase + rehab + closing on the list price + selling and
// misc buffer on the ARV. cfg.RehabBudget must be set.
func TotalCosts(arv, listPrice float64, cfg config.ProfitConfig) float64 {
	return listPrice +
		*cfg.RehabBudget +
		cfg.ClosingCostsPct*listPrice +
		cfg.SellingCostsPct*arv +
		cfg.MiscBufferPct*arv
}
