package stats

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Median returns the middle value of values, or the mean of the two middle
// values for an even-sized set. ok is false for an empty set.
func Median(values []float64) (median float64, ok bool) {
	arr := sorted(values)
	n := len(arr)
	if n == 0 {
		return 0, false
	}
	mid := n / 2
	if n%2 == 1 {
		return arr[mid], true
	}
	return (arr[mid-1] + arr[mid]) / 2, true
}

// IQR returns Q3-Q1 using linear interpolation between order statistics.
// Fewer than four samples carry no dispersion signal and yield 0.
func IQR(values []float64) float64 {
	arr := sorted(values)
	if len(arr) < 4 {
		return 0
	}
	iqr := percentile(arr, 0.75) - percentile(arr, 0.25)
	return math.Max(0, iqr)
}

func percentile(arr []float64, p float64) float64 {
	n := len(arr)
	k := float64(n-1) * p
	f := int(k)
	c := f + 1
	if c > n-1 {
		c = n - 1
	}
	if f == c {
		return arr[f]
	}
	return arr[f]*(float64(c)-k) + arr[c]*(k-float64(f))
}

func sorted(values []float64) []float64 {
	arr := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		arr = append(arr, v)
	}
	sort.Float64s(arr)
	return arr
}

// Mean returns the arithmetic mean, ok is false for an empty set.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Clamp01 bounds x to [0,1].
func Clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// SafeFloat coerces numbers, numeric strings and json.Number into a float64.
// Anything else, including empty strings and NaN, is reported as absent.
func SafeFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatPtr is SafeFloat returning nil for absent values.
func FloatPtr(v any) *float64 {
	f, ok := SafeFloat(v)
	if !ok {
		return nil
	}
	return &f
}
