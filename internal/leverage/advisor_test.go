package leverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseLeverageStepFunction(t *testing.T) {
	a := NewAdvisor()

	cases := []struct {
		equity float64
		want   int
	}{
		{0, 1},
		{50, 1},
		{99.99, 1},
		{100, 2},
		{100.01, 2},
		{10000, 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, a.BaseLeverage(tc.equity), "equity %.2f", tc.equity)
	}
}

func TestBaseLeverageNegativeEquityClamped(t *testing.T) {
	a := NewAdvisor()
	assert.Equal(t, 1, a.BaseLeverage(-250))
}

func TestAdjustForConfidenceBands(t *testing.T) {
	a := NewAdvisor()

	cases := []struct {
		name       string
		base       int
		confidence float64
		want       int
	}{
		// Rounding collapses the 0.9/0.8/0.7 bands to the base
		// multiplier; only the 0.6 and lower bands reach 1x.
		{"very high confidence keeps base", 2, 0.95, 2},
		{"0.9 boundary keeps base", 2, 0.9, 2},
		{"0.8 band rounds back to base", 2, 0.85, 2},
		{"0.7 band rounds back to base", 2, 0.7, 2},
		{"0.6 band forces 1x", 2, 0.65, 1},
		{"low confidence forces 1x", 2, 0.3, 1},
		{"base 1x never rises", 1, 0.99, 1},
		{"base 1x low confidence clamps up to 1x", 1, 0.1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.AdjustForConfidence(tc.base, tc.confidence))
		})
	}
}

// Output is always a whole multiplier in {1,2} and is monotonic
// non-decreasing as confidence crosses 0.7 from below.
func TestAdjustForConfidenceDomainProperty(t *testing.T) {
	a := NewAdvisor()

	prevAt069 := a.AdjustForConfidence(2, 0.69)
	at070 := a.AdjustForConfidence(2, 0.70)
	assert.LessOrEqual(t, prevAt069, at070)

	for c := 0.0; c <= 1.0; c += 0.01 {
		for _, base := range []int{1, 2} {
			lev := a.AdjustForConfidence(base, c)
			assert.Contains(t, []int{1, 2}, lev, "confidence %.2f base %d", c, base)
		}
	}
}

func TestAdjustForConfidenceOutOfRangeClamped(t *testing.T) {
	a := NewAdvisor()

	assert.Equal(t, a.AdjustForConfidence(2, 1.0), a.AdjustForConfidence(2, 5.0))
	assert.Equal(t, a.AdjustForConfidence(2, 0.0), a.AdjustForConfidence(2, -1.0))
}

func TestAdvise(t *testing.T) {
	a := NewAdvisor()

	assert.Equal(t, 2, a.Advise(1000, 0.9))
	assert.Equal(t, 1, a.Advise(1000, 0.65))
	assert.Equal(t, 1, a.Advise(50, 0.95))
}
