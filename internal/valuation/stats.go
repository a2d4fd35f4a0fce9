package valuation

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// The helpers below return 0 for an empty sample instead of the NaN and
// error the stats package reports.

func floats(xs []int64) stats.Float64Data {
	out := make(stats.Float64Data, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func mean(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m, _ := stats.Mean(floats(xs))
	return m
}

// stddev is the population standard deviation.
func stddev(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sd, _ := stats.StandardDeviationPopulation(floats(xs))
	return sd
}

func median(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m, _ := stats.Median(floats(xs))
	return m
}

// trimmedMean drops floor(n*ratio) values from each end of the sorted sample.
// Samples smaller than minTrimSample are not trimmed.
func trimmedMean(xs []int64, ratio float64) float64 {
	n := len(xs)
	if n < minTrimSample {
		return mean(xs)
	}
	k := int(math.Floor(float64(n) * ratio))
	if 2*k >= n {
		return median(xs)
	}
	s := floats(xs)
	sort.Sort(s)
	m, _ := stats.Mean(s[k : n-k])
	return m
}

// withoutOutliers keeps values within mean ± sigmas·stddev. When fewer than
// floor values survive, the raw sample is returned unchanged.
func withoutOutliers(xs []int64, sigmas float64, floor int) []int64 {
	m := mean(xs)
	band := sigmas * stddev(xs)
	kept := make([]int64, 0, len(xs))
	for _, x := range xs {
		if math.Abs(float64(x)-m) <= band {
			kept = append(kept, x)
		}
	}
	if len(kept) < floor {
		return xs
	}
	return kept
}
