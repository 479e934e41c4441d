package bjontegaard

import (
	"errors"
	"fmt"
)

// Sentinel errors for curve validation.
// These can be checked with errors.Is().
var (
	ErrInsufficientData = errors.New("insufficient rate-distortion points")
	ErrInvalidDomain    = errors.New("rate and quality must be positive and finite")
)

func insufficientDataError(name string, n int) error {
	return fmt.Errorf("%w: curve %q has %d points, need %d", ErrInsufficientData, name, n, MinPoints)
}

func invalidDomainError(name string, p Point) error {
	return fmt.Errorf("%w: curve %q point (rate=%g, quality=%g)", ErrInvalidDomain, name, p.Rate, p.Quality)
}
