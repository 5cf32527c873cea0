package neat

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func clamp(value, minVal, maxVal float64) float64 {
	return max(minVal, min(value, maxVal))
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return stat.Mean(values, nil)
}

// Stdev returns the sample standard deviation, or 0 below two values.
func Stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	return stat.StdDev(values, nil)
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	return floats.Sum(values)
}

// MaxFloat returns the maximum value, or negative infinity for an empty slice.
func MaxFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	return floats.Max(values)
}

// MinFloat returns the minimum value, or positive infinity for an empty slice.
func MinFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	return floats.Min(values)
}

// Median returns the middle value (the mean of the two middle values for an
// even count), or NaN for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Sorted(slices.Values(values))
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// StatFunctions are the aggregations selectable by species_fitness_func.
var StatFunctions = map[string]func([]float64) float64{
	"mean":   Mean,
	"stdev":  Stdev,
	"sum":    Sum,
	"max":    MaxFloat,
	"min":    MinFloat,
	"median": Median,
}
