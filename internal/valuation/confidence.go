package valuation

import "arvscout/internal/stats"

// Confidence weights. Equal weighting is a heuristic choice and can be tuned
// without touching the scoring terms.
const (
	CountWeight  = 0.5
	SpreadWeight = 0.5
)

// Confidence maps PPSF samples to a score in [0,1] that grows with sample
// count (saturating at 2*minComps) and shrinks with IQR/median dispersion.
func Confidence(ppsf []float64, minComps int) float64 {
	if len(ppsf) == 0 {
		return 0
	}
	med, ok := stats.Median(ppsf)
	if !ok || med <= 0 {
		return 0
	}

	dispersion := stats.IQR(ppsf) / med

	target := 2 * minComps
	if target < 1 {
		target = 1
	}
	nScore := stats.Clamp01(float64(len(ppsf)) / float64(target))
	spreadScore := 1 / (1 + dispersion)

	return stats.Clamp01(CountWeight*nScore + SpreadWeight*spreadScore)
}
