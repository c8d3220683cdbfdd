// Package geometry holds the great-circle helpers used to keep comparable
// sales near the subject property.
package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"arvscout/internal/models"
)

const metersPerMile = 1609.344

// Point builds an orb point from optional coordinates. orb points are
// (longitude, latitude).
func Point(lat, lon *float64) (orb.Point, bool) {
	if lat == nil || lon == nil {
		return orb.Point{}, false
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return orb.Point{}, false
	}
	return orb.Point{*lon, *lat}, true
}

// DistanceMiles is the haversine distance between a and b.
func DistanceMiles(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b) / metersPerMile
}

// ScreenByRadius drops comps farther than radiusMi from the subject. Comps
// without coordinates are kept, and nothing is dropped when the subject has
// no coordinates or radiusMi is not positive. The second result counts the
// dropped comps.
func ScreenByRadius(subject models.SubjectProperty, comps []models.ComparableSale, radiusMi float64) ([]models.ComparableSale, int) {
	center, ok := Point(subject.Latitude, subject.Longitude)
	if !ok || radiusMi <= 0 {
		return comps, 0
	}

	kept := make([]models.ComparableSale, 0, len(comps))
	for _, c := range comps {
		p, ok := Point(c.Latitude, c.Longitude)
		if ok && DistanceMiles(center, p) > radiusMi {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(comps) - len(kept)
}

// CompBound returns the bounding box around the subject and every comp that
// carries coordinates.
func CompBound(subject models.SubjectProperty, comps []models.ComparableSale) (orb.Bound, bool) {
	var mp orb.MultiPoint
	if p, ok := Point(subject.Latitude, subject.Longitude); ok {
		mp = append(mp, p)
	}
	for _, c := range comps {
		if p, ok := Point(c.Latitude, c.Longitude); ok {
			mp = append(mp, p)
		}
	}
	if len(mp) == 0 {
		return orb.Bound{}, false
	}
	return mp.Bound(), true
}
