package bjontegaard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceCurve() Curve {
	return NewCurve("baseline",
		Point{Rate: 1000, Quality: 80},
		Point{Rate: 2000, Quality: 85},
		Point{Rate: 4000, Quality: 90},
		Point{Rate: 8000, Quality: 93},
	)
}

// scaledCurve multiplies every rate of c by factor.
func scaledCurve(name string, c Curve, factor float64) Curve {
	out := Curve{Name: name}
	for _, p := range c.Points() {
		out.Add(Point{Rate: p.Rate * factor, Quality: p.Quality})
	}
	return out
}

func TestBDRate_TenPercentSaving(t *testing.T) {
	baseline := referenceCurve()
	target := NewCurve("target",
		Point{Rate: 900, Quality: 80},
		Point{Rate: 1800, Quality: 85},
		Point{Rate: 3600, Quality: 90},
		Point{Rate: 7200, Quality: 93},
	)

	got, err := BDRate(baseline, target)
	require.NoError(t, err)

	// Every rate is scaled by 0.9, so both fits differ by exactly ln(0.9).
	assert.InDelta(t, -10.0, got, 1e-6)
}

// Neither curve is a rescaling of the other, so the result depends on both
// cubic fits and on a partial overlap of their domains.
func TestBD_IrregularLadders(t *testing.T) {
	baseline := NewCurve("baseline",
		Point{Rate: 310, Quality: 61.2},
		Point{Rate: 720, Quality: 70.9},
		Point{Rate: 1490, Quality: 79.4},
		Point{Rate: 2950, Quality: 86.1},
		Point{Rate: 6100, Quality: 91.7},
	)
	target := NewCurve("target",
		Point{Rate: 280, Quality: 60.1},
		Point{Rate: 690, Quality: 71.8},
		Point{Rate: 1350, Quality: 78.9},
		Point{Rate: 3100, Quality: 87.7},
		Point{Rate: 5600, Quality: 90.9},
		Point{Rate: 9000, Quality: 93.2},
	)

	rate, err := BDRate(baseline, target)
	require.NoError(t, err)
	assert.InDelta(t, -6.5727634823, rate, 1e-8)

	snr, err := BDSNR(baseline, target)
	require.NoError(t, err)
	assert.InDelta(t, 0.7883787103, snr, 1e-8)
}

func TestBDRate_SelfComparisonIsZero(t *testing.T) {
	curves := []Curve{
		referenceCurve(),
		NewCurve("noisy",
			Point{Rate: 310, Quality: 61.2},
			Point{Rate: 720, Quality: 70.9},
			Point{Rate: 1490, Quality: 79.4},
			Point{Rate: 2950, Quality: 86.1},
			Point{Rate: 6100, Quality: 91.7},
		),
	}

	for _, c := range curves {
		t.Run(c.Name, func(t *testing.T) {
			rate, err := BDRate(c, c)
			require.NoError(t, err)
			assert.Equal(t, 0.0, rate)

			snr, err := BDSNR(c, c)
			require.NoError(t, err)
			assert.Equal(t, 0.0, snr)
		})
	}
}

func TestBDRate_OppositeSignWhenSwapped(t *testing.T) {
	a := referenceCurve()
	b := scaledCurve("cheaper", a, 0.9)

	ab, err := BDRate(a, b)
	require.NoError(t, err)
	ba, err := BDRate(b, a)
	require.NoError(t, err)

	assert.Less(t, ab, 0.0)
	assert.Greater(t, ba, 0.0)
	assert.InDelta(t, (1/0.9-1)*100, ba, 1e-6)
}

func TestBDSNR_ConstantQualityShift(t *testing.T) {
	baseline := referenceCurve()
	target := Curve{Name: "better"}
	for _, p := range baseline.Points() {
		target.Add(Point{Rate: p.Rate, Quality: p.Quality + 1.5})
	}

	got, err := BDSNR(baseline, target)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 1e-9)
}

func TestBDSNR_DisjointDomainsYieldZero(t *testing.T) {
	low := NewCurve("low",
		Point{Rate: 100, Quality: 40},
		Point{Rate: 200, Quality: 50},
		Point{Rate: 300, Quality: 55},
		Point{Rate: 400, Quality: 58},
	)
	high := NewCurve("high",
		Point{Rate: 1000, Quality: 80},
		Point{Rate: 2000, Quality: 85},
		Point{Rate: 4000, Quality: 90},
		Point{Rate: 8000, Quality: 93},
	)

	snr, err := BDSNR(low, high)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snr)

	// Quality domains are disjoint too.
	rate, err := BDRate(low, high)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestBDSNR_TouchingDomainsYieldZero(t *testing.T) {
	a := NewCurve("a",
		Point{Rate: 100, Quality: 40},
		Point{Rate: 200, Quality: 50},
		Point{Rate: 300, Quality: 55},
		Point{Rate: 1000, Quality: 58},
	)
	b := NewCurve("b",
		Point{Rate: 1000, Quality: 80},
		Point{Rate: 2000, Quality: 85},
		Point{Rate: 4000, Quality: 90},
		Point{Rate: 8000, Quality: 93},
	)

	snr, err := BDSNR(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snr)
}

func TestPercentFromLogDelta_Clamp(t *testing.T) {
	ceiling := percentFromLogDelta(maxLogDelta)
	assert.False(t, math.IsInf(ceiling, 0))

	for _, d := range []float64{200.0000001, 201, 710, 1e6, math.MaxFloat64} {
		assert.Equal(t, ceiling, percentFromLogDelta(d), "delta %g", d)
	}

	// Lower side is not clamped.
	assert.Equal(t, -100.0, percentFromLogDelta(-1000))
	assert.InDelta(t, 100.0, percentFromLogDelta(math.Ln2), 1e-9)
	assert.Equal(t, 0.0, percentFromLogDelta(0))
}

func TestBDRate_InsufficientData(t *testing.T) {
	full := referenceCurve().Points()

	for n := 1; n < MinPoints; n++ {
		short := NewCurve("short", full[:n]...)

		_, err := BDRate(referenceCurve(), short)
		assert.ErrorIs(t, err, ErrInsufficientData, "n=%d", n)

		_, err = BDSNR(short, referenceCurve())
		assert.ErrorIs(t, err, ErrInsufficientData, "n=%d", n)
	}

	exact := NewCurve("exact", full[:MinPoints]...)
	_, err := BDRate(referenceCurve(), exact)
	assert.NoError(t, err)
}

func TestBDRate_DuplicateRatesCountOnce(t *testing.T) {
	c := NewCurve("dup",
		Point{Rate: 1000, Quality: 80},
		Point{Rate: 1000, Quality: 81},
		Point{Rate: 2000, Quality: 85},
		Point{Rate: 4000, Quality: 90},
	)
	require.Equal(t, 3, c.Len())
	assert.Equal(t, 81.0, c.Points()[0].Quality)

	_, err := BDRate(referenceCurve(), c)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBDRate_InvalidDomain(t *testing.T) {
	tests := []struct {
		name  string
		point Point
	}{
		{"zero rate", Point{Rate: 0, Quality: 50}},
		{"negative rate", Point{Rate: -500, Quality: 50}},
		{"zero quality", Point{Rate: 500, Quality: 0}},
		{"negative quality", Point{Rate: 500, Quality: -3}},
		{"nan quality", Point{Rate: 500, Quality: math.NaN()}},
		{"inf rate", Point{Rate: math.Inf(1), Quality: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := referenceCurve()
			bad.Add(tt.point)

			_, err := BDRate(referenceCurve(), bad)
			assert.ErrorIs(t, err, ErrInvalidDomain)

			_, err = BDSNR(bad, referenceCurve())
			assert.ErrorIs(t, err, ErrInvalidDomain)
		})
	}
}

func TestCurve_PointsSortedByRate(t *testing.T) {
	c := NewCurve("shuffled",
		Point{Rate: 4000, Quality: 90},
		Point{Rate: 1000, Quality: 80},
		Point{Rate: 8000, Quality: 93},
		Point{Rate: 2000, Quality: 85},
	)

	assert.Equal(t, referenceCurve().Points(), c.Points())
}
