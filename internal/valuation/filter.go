package valuation

import (
	"strings"

	"arvscout/config"
	"arvscout/internal/models"
)

const (
	sqftLowerBound = 0.8
	sqftUpperBound = 1.2

	defaultLotSizeCapRatio = 2.0
)

// FilterAndPPSF returns price/sqft for every comparable that passes the
// subject-relative filter. Invalid comps are dropped silently.
func FilterAndPPSF(comps []models.ComparableSale, subject models.SubjectProperty, cfg config.ArvConfig) []float64 {
	kept := filterComps(comps, subject, cfg)
	ppsf := make([]float64, 0, len(kept))
	for _, c := range kept {
		ppsf = append(ppsf, *c.Price / *c.Sqft)
	}
	return ppsf
}

// filterComps applies the full filter predicate and returns the survivors in
// input order.
func filterComps(comps []models.ComparableSale, subject models.SubjectProperty, cfg config.ArvConfig) []models.ComparableSale {
	lotCap := cfg.Adjustments.LotSizeCapRatio
	if lotCap <= 0 {
		lotCap = defaultLotSizeCapRatio
	}

	subjectSqft := positive(subject.Sqft)
	subjectLot := positive(subject.LotSqft)
	subjectType := strings.TrimSpace(subject.HomeType)

	kept := make([]models.ComparableSale, 0, len(comps))
	for _, c := range comps {
		price := positive(c.Price)
		sqft := positive(c.Sqft)
		if price == 0 || sqft == 0 {
			continue
		}

		// A comp that does not report its type is not evidence of a mismatch.
		compType := strings.TrimSpace(c.HomeType)
		if subjectType != "" && compType != "" && !strings.EqualFold(compType, subjectType) {
			continue
		}

		if subjectSqft > 0 && (sqft < sqftLowerBound*subjectSqft || sqft > sqftUpperBound*subjectSqft) {
			continue
		}

		if lot := positive(c.LotSqft); subjectLot > 0 && lot > 0 && lot > lotCap*subjectLot {
			continue
		}

		kept = append(kept, c)
	}
	return kept
}

// positive returns *v when it is set and greater than zero, otherwise 0.
func positive(v *float64) float64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return *v
}
