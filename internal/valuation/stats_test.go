package valuation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want float64
	}{
		{"empty", nil, 0},
		{"odd", []int64{3, 1, 2}, 2},
		{"even", []int64{4, 1, 3, 2}, 2.5},
		{"single", []int64{7}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, median(tt.in))
		})
	}
}

func TestStddev_Population(t *testing.T) {
	// population variance of {2,4,4,4,5,5,7,9} is 4
	assert.InDelta(t, 2.0, stddev([]int64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Zero(t, stddev([]int64{5, 5, 5}))
}

func TestTrimmedMean_SkipsSmallSamples(t *testing.T) {
	xs := []int64{1, 2, 3, 100}
	assert.Equal(t, mean(xs), trimmedMean(xs, 0.10))
}

func TestTrimmedMean_DropsBothEnds(t *testing.T) {
	// n=10, ratio 0.10 -> one value dropped from each end
	xs := []int64{1000, 10, 20, 30, 40, 50, 60, 70, 80, 1}
	assert.InDelta(t, 45.0, trimmedMean(xs, 0.10), 1e-9)
}

func TestTrimmedMean_IgnoresOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	xs := make([]int64, 40)
	for i := range xs {
		xs[i] = int64(r.Intn(1_000_000))
	}
	want := trimmedMean(xs, 0.10)

	for i := 0; i < 20; i++ {
		shuffled := append([]int64(nil), xs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, trimmedMean(shuffled, 0.10))
	}
}

func TestCentralTendency_SymmetricSamplesAgree(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		xs := make([]int64, 2000)
		for i := range xs {
			xs[i] = int64(math.Round(500_000 + r.NormFloat64()*20_000))
		}
		m, med, tm := mean(xs), median(xs), trimmedMean(xs, 0.10)

		// within 1% of the centre for n=2000, sigma=20k
		assert.InDelta(t, m, tm, 5_000)
		assert.InDelta(t, m, med, 5_000)
		assert.InDelta(t, 500_000, tm, 5_000)
	}
}

func TestWithoutOutliers_RemovesFarValue(t *testing.T) {
	xs := []int64{100, 100, 100, 100, 100, 100, 100, 100, 100, 10_000}
	got := withoutOutliers(xs, 2, 4)
	assert.Len(t, got, 9)
	assert.NotContains(t, got, int64(10_000))
}

func TestWithoutOutliers_FallsBackBelowFloor(t *testing.T) {
	xs := []int64{100, 100, 100, 100, 100, 100, 100, 100, 100, 10_000}
	got := withoutOutliers(xs, 2, 10)
	assert.Equal(t, xs, got)
}

func TestWithoutOutliers_NeverBelowFloor(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	const floor = 4
	for trial := 0; trial < 500; trial++ {
		n := 1 + r.Intn(30)
		xs := make([]int64, n)
		for i := range xs {
			// heavy tailed: mostly near 1e5, sometimes far away
			if r.Intn(5) == 0 {
				xs[i] = int64(r.Intn(10_000_000))
			} else {
				xs[i] = 100_000 + int64(r.Intn(5_000))
			}
		}
		got := withoutOutliers(xs, 2, floor)
		if n >= floor {
			assert.GreaterOrEqual(t, len(got), floor)
		} else {
			assert.Len(t, got, n)
		}
	}
}

func TestWithoutOutliers_IdenticalValuesKept(t *testing.T) {
	xs := []int64{7, 7, 7, 7, 7}
	assert.Equal(t, xs, withoutOutliers(xs, 2, 4))
}

func TestHelpersDoNotReorderInput(t *testing.T) {
	xs := []int64{500, 100, 900, 300, 700, 200, 800, 400, 600, 1000}
	want := append([]int64(nil), xs...)

	median(xs)
	trimmedMean(xs, 0.10)
	assert.Equal(t, want, xs)
}
