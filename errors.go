package ttvfast

import (
	"fmt"
	"math"
)

// DegenerateOrbitError is returned when the energy parameter β0 falls inside the
// near-parabolic band where neither the elliptic nor the hyperbolic formulation
// applies. No state is written when this error is returned.
type DegenerateOrbitError struct {
	Beta0 float64
}

func (e DegenerateOrbitError) Error() string {
	return fmt.Sprintf("degenerate near-parabolic orbit: |β0|=%.3e is below %.0e", math.Abs(e.Beta0), betaParabolicε)
}

// NonConvergenceError is returned when the Kepler solver exhausts its iteration
// budget. The best-effort state computed from the last estimate of s is still
// returned so that the caller may retry with a different warm start or timestep.
type NonConvergenceError struct {
	DS         float64 // magnitude of the final correction
	Iterations uint
}

func (e NonConvergenceError) Error() string {
	return fmt.Sprintf("universal Kepler equation did not converge after %d iterations (|ds|=%.3e)", e.Iterations, e.DS)
}

// SingularJacobianError is returned when the quartic correction denominator
// vanishes, which would otherwise propagate Inf or NaN through the step.
type SingularJacobianError struct {
	Den float64
}

func (e SingularJacobianError) Error() string {
	return fmt.Sprintf("singular denominator in quartic correction (den=%.3e)", e.Den)
}
