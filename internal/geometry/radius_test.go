package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvscout/internal/models"
)

func f(v float64) *float64 { return &v }

func TestDistanceMiles(t *testing.T) {
	// one degree of latitude is roughly 69 miles
	d := DistanceMiles(orb.Point{-97.0, 30.0}, orb.Point{-97.0, 31.0})
	assert.InDelta(t, 69.1, d, 0.2)
	assert.Equal(t, 0.0, DistanceMiles(orb.Point{1, 1}, orb.Point{1, 1}))
}

func TestPoint(t *testing.T) {
	p, ok := Point(f(30.1), f(-97.2))
	require.True(t, ok)
	assert.Equal(t, orb.Point{-97.2, 30.1}, p)

	_, ok = Point(nil, f(1))
	assert.False(t, ok)
	_, ok = Point(f(91), f(1))
	assert.False(t, ok)
}

func TestScreenByRadius(t *testing.T) {
	subject := models.SubjectProperty{Latitude: f(30.0), Longitude: f(-97.0)}
	comps := []models.ComparableSale{
		{Price: f(1), Latitude: f(30.005), Longitude: f(-97.0)}, // ~0.35 mi
		{Price: f(2), Latitude: f(30.05), Longitude: f(-97.0)},  // ~3.5 mi
		{Price: f(3)}, // no coordinates
	}

	kept, dropped := ScreenByRadius(subject, comps, 0.75)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, 1.0, *kept[0].Price)
	assert.Equal(t, 3.0, *kept[1].Price)

	kept, dropped = ScreenByRadius(models.SubjectProperty{}, comps, 0.75)
	assert.Equal(t, 0, dropped)
	assert.Len(t, kept, 3)

	kept, dropped = ScreenByRadius(subject, comps, 0)
	assert.Equal(t, 0, dropped)
	assert.Len(t, kept, 3)
}

func TestCompBound(t *testing.T) {
	subject := models.SubjectProperty{Latitude: f(30.0), Longitude: f(-97.0)}
	comps := []models.ComparableSale{
		{Latitude: f(30.5), Longitude: f(-97.5)},
		{},
	}

	b, ok := CompBound(subject, comps)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-97.5, 30.0}, b.Min)
	assert.Equal(t, orb.Point{-97.0, 30.5}, b.Max)

	_, ok = CompBound(models.SubjectProperty{}, nil)
	assert.False(t, ok)
}
