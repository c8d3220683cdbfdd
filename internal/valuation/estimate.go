package valuation

import (
	"math"

	"arvscout/config"
	"arvscout/internal/models"
	"arvscout/internal/stats"
)

// EstimateARV values subject from comps. It returns the estimate and the
// list-to-ARV deal ratio, which is defined as 0 when the estimate is 0.
func EstimateARV(subject models.SubjectProperty, comps []models.ComparableSale, cfg config.ArvConfig) (models.ArvEstimate, float64, error) {
	subjectSqft := positive(subject.Sqft)
	if subjectSqft == 0 {
		return models.ArvEstimate{}, 0, &MissingFieldError{Field: "sqft"}
	}
	if subject.ListPrice == nil {
		return models.ArvEstimate{}, 0, &MissingFieldError{Field: "list price"}
	}

	kept := filterComps(comps, subject, cfg)
	if len(kept) == 0 {
		return models.ArvEstimate{}, 0, ErrNoComps
	}
	ppsf := make([]float64, len(kept))
	for i, c := range kept {
		ppsf[i] = *c.Price / *c.Sqft
	}

	medPPSF, _ := stats.Median(ppsf)
	baseline := medPPSF * subjectSqft

	multiplier := AdjustmentMultiplier(subject, kept, cfg.Adjustments)
	arv := math.Max(0, baseline*multiplier)

	estimate := models.ArvEstimate{
		ArvValue:     arv,
		BaselinePPSF: medPPSF,
		CompCount:    len(ppsf),
		Confidence:   Confidence(ppsf, cfg.MinComps),
	}
	return estimate, DealRatio(*subject.ListPrice, arv), nil
}

// AdjustmentMultiplier returns 1 + bed delta + bath delta, where each delta is
// the subject's difference from the comp mean times its step percentage.
// A delta is 0 when the subject or every comp lacks the attribute.
func AdjustmentMultiplier(subject models.SubjectProperty, comps []models.ComparableSale, adj config.Adjustments) float64 {
	bedDelta := attributeDelta(subject.Beds, comps, func(c models.ComparableSale) *float64 { return c.Beds }) * adj.BedStepPct
	bathDelta := attributeDelta(subject.Baths, comps, func(c models.ComparableSale) *float64 { return c.Baths }) * adj.BathStepPct
	return 1 + bedDelta + bathDelta
}

func attributeDelta(subjectValue *float64, comps []models.ComparableSale, get func(models.ComparableSale) *float64) float64 {
	if subjectValue == nil {
		return 0
	}
	values := make([]float64, 0, len(comps))
	for _, c := range comps {
		if v := get(c); v != nil {
			values = append(values, *v)
		}
	}
	mean, ok := stats.Mean(values)
	if !ok {
		return 0
	}
	return *subjectValue - mean
}

// DealRatio returns listPrice/arv, or 0 when arv is not positive.
func DealRatio(listPrice, arv float64) float64 {
	if arv <= 0 {
		return 0
	}
	return listPrice / arv
}
