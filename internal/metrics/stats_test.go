package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePercentile_LinearInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		p    float64
		want float64
	}{
		{0.0, 10},
		{0.25, 17.5},
		{0.50, 25},
		{0.75, 32.5},
		{1.0, 40},
	}
	for _, tt := range tests {
		got := computePercentile(sorted, tt.p)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("p=%.2f: expected %f, got %f", tt.p, tt.want, got)
		}
	}

	assert.Equal(t, 0.0, computePercentile(nil, 0.5))
	assert.Equal(t, 7.0, computePercentile([]float64{7}, 0.75))
}

func TestComputeStddev_Population(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, computeStddev(values, mean), 1e-9)
	assert.Equal(t, 0.0, computeStddev(nil, 0))
	assert.Equal(t, 0.0, computeStddev([]float64{3}, 3))
}

func TestComputeAvgGapHours(t *testing.T) {
	assert.Equal(t, 0.0, computeAvgGapHours([]int64{100}))
	// gaps of 1h and 3h
	assert.InDelta(t, 2.0, computeAvgGapHours([]int64{0, 3600, 4 * 3600}), 1e-9)
}

func TestPrimaryKey_TiesByName(t *testing.T) {
	assert.Equal(t, "", primaryKey(nil))
	assert.Equal(t, "paypal", primaryKey(map[string]int{"cc": 1, "paypal": 3}))
	assert.Equal(t, "apple_pay", primaryKey(map[string]int{"cc": 2, "apple_pay": 2}))
}

func TestMergeSorted(t *testing.T) {
	assert.Nil(t, mergeSorted(nil, nil))
	assert.Equal(t, []string{"a", "b", "c", "d"}, mergeSorted([]string{"a", "c"}, []string{"b", "c", "d"}))
	assert.Equal(t, []string{"x"}, mergeSorted([]string{"x"}, nil))
}

func TestRatio_NonPositiveDenominator(t *testing.T) {
	assert.Equal(t, 0.0, ratio(5, 0))
	assert.Equal(t, 0.0, ratio(5, -1))
	assert.Equal(t, 2.5, ratio(5, 2))
}
