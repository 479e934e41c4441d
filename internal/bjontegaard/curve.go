package bjontegaard

import (
	"math"
	"sort"
)

// MinPoints is the smallest curve a cubic fit accepts.
const MinPoints = 4

// Point is one rate-distortion operating point.
type Point struct {
	Rate    float64 // bitrate, must be > 0
	Quality float64 // quality metric score, must be > 0
}

func (p Point) valid() bool {
	return p.Rate > 0 && p.Quality > 0 &&
		!math.IsInf(p.Rate, 0) && !math.IsInf(p.Quality, 0)
}

// Curve is a set of points for one encoder configuration and one quality
// metric, keyed by rate. Adding a point whose rate is already present
// replaces the earlier point.
type Curve struct {
	Name   string
	points []Point // sorted by rate
}

// NewCurve builds a curve from points in any order.
func NewCurve(name string, points ...Point) Curve {
	c := Curve{Name: name}
	for _, p := range points {
		c.Add(p)
	}
	return c
}

// Add inserts p, replacing any point with the same rate.
func (c *Curve) Add(p Point) {
	i := sort.Search(len(c.points), func(i int) bool { return c.points[i].Rate >= p.Rate })
	if i < len(c.points) && c.points[i].Rate == p.Rate {
		c.points[i] = p
		return
	}
	c.points = append(c.points, Point{})
	copy(c.points[i+1:], c.points[i:])
	c.points[i] = p
}

// Len returns the number of distinct rates.
func (c Curve) Len() int {
	return len(c.points)
}

// Points returns a copy of the points ordered by rate.
func (c Curve) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Validate reports whether the curve can be fitted.
func (c Curve) Validate() error {
	if len(c.points) < MinPoints {
		return insufficientDataError(c.Name, len(c.points))
	}
	for _, p := range c.points {
		// NaN fails the > 0 comparisons in valid.
		if !p.valid() {
			return invalidDomainError(c.Name, p)
		}
	}
	return nil
}

func (c Curve) logRates() []float64 {
	out := make([]float64, len(c.points))
	for i, p := range c.points {
		out[i] = math.Log(p.Rate)
	}
	return out
}

func (c Curve) qualities() []float64 {
	out := make([]float64, len(c.points))
	for i, p := range c.points {
		out[i] = p.Quality
	}
	return out
}
