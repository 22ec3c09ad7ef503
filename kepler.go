package ttvfast

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

const (
	betaParabolicε = 1e-15 // width of the unhandled near-parabolic band
	solveAbsε      = 1e-8  // absolute convergence tolerance on ds
	solveRelε      = 1e-8  // relative convergence tolerance on ds
	maxSolverIters = 10
)

// regime selects the closed-form branch of the universal variable formulation.
type regime uint8

const (
	elliptic regime = iota + 1
	hyperbolic
)

func (reg regime) String() string {
	switch reg {
	case elliptic:
		return "elliptic"
	case hyperbolic:
		return "hyperbolic"
	default:
		return "degenerate"
	}
}

// InitialConditions holds the relative two-body state to propagate. Build it
// via NewInitialConditions which populates the derived scalars.
type InitialConditions struct {
	R, V  [3]float64 // relative position and velocity
	R0    float64    // initial separation |R|
	Rdot0 float64    // radial velocity, projection of V onto the R direction
	K     float64    // gravitational parameter G(m1+m2)
	H     float64    // timestep
	Beta0 float64    // energy parameter 2K/R0 - |V|²
	S0    float64    // warm start for the generalized anomaly, 0 means fresh guess
}

// NewInitialConditions returns the initial conditions for a relative state,
// gravitational parameter and timestep, with the derived scalars computed.
func NewInitialConditions(R, V [3]float64, k, h float64) InitialConditions {
	r0 := norm(R)
	return InitialConditions{R, V, r0, dot(R, V) / r0, k, h, 2*k/r0 - dot(V, V), 0}
}

// WithWarmStart returns a copy of these initial conditions seeded with the
// provided generalized anomaly, typically the converged S of the previous step.
func (ic InitialConditions) WithWarmStart(s0 float64) InitialConditions {
	ic.S0 = s0
	return ic
}

// TwoBodyState is the output of one exact Kepler propagation.
type TwoBodyState struct {
	R, V  [3]float64 // propagated relative position and velocity
	RNorm float64    // resulting separation
	Rdot  float64    // resulting radial velocity
	Beta  float64    // resulting energy parameter 2K/RNorm - |V|²
	S     float64    // converged generalized anomaly
	DS    float64    // final solver correction, convergence diagnostic
}

// gauss holds the finalized geometric quantities of a completed step. The g2
// scalar is stored in the branch convention: it is negated in the hyperbolic
// regime relative to the universal one.
type gauss struct {
	reg              regime
	s, β             float64
	g0, g1, g2       float64
	f, g, fDot, gDot float64
	r                float64
}

// universal returns the Stumpff-like scalars in the continuous universal sign
// convention valid across both regimes.
func (gs gauss) universal() (g0, g1, g2, g3 float64) {
	g0, g1, g2 = gs.g0, gs.g1, gs.g2
	if gs.reg == hyperbolic {
		g2 = -g2
	}
	g3 = (gs.s - g1) / gs.β
	return
}

// Propagate advances the two-body problem by the timestep of the provided
// initial conditions and returns the resulting state. The propagation is exact
// up to the root-finding tolerance on the universal Kepler equation.
func Propagate(ic InitialConditions) (TwoBodyState, error) {
	state, _, err := propagate(ic)
	return state, err
}

// PropagateJacobian is Propagate which additionally assembles the 7x7 Jacobian
// of the final (position, velocity, K) with respect to the initial ones. The
// matrix is freshly allocated on each call; K is conserved so its row is unit.
func PropagateJacobian(ic InitialConditions) (TwoBodyState, *mat64.Dense, error) {
	state, gs, err := propagate(ic)
	if err != nil {
		return state, nil, err
	}
	return state, newJacobian(ic, gs), nil
}

// propagate runs the shared iterative skeleton: select the regime from the
// sign of β0, solve the universal Kepler equation for the generalized anomaly,
// then finalize the Gauss functions and the propagated state.
func propagate(ic InitialConditions) (TwoBodyState, gauss, error) {
	var reg regime
	switch {
	case ic.Beta0 > betaParabolicε:
		reg = elliptic
	case ic.Beta0 < -betaParabolicε:
		reg = hyperbolic
	default:
		return TwoBodyState{}, gauss{}, DegenerateOrbitError{Beta0: ic.Beta0}
	}
	η := ic.R0 * ic.Rdot0
	s := ic.S0
	if s == 0 {
		s = ic.H / ic.R0
	}
	var ds float64
	converged := false
	for iter := 0; iter < maxSolverIters; iter++ {
		y, yp, ypp, yppp := reg.keplerDerivatives(ic.K, ic.R0, η, ic.Beta0, ic.H, s)
		var err error
		ds, err = quarticStep(y, yp, ypp, yppp)
		if err != nil {
			return TwoBodyState{}, gauss{}, err
		}
		s += ds
		if math.Abs(ds) <= solveAbsε+solveRelε*math.Abs(s) {
			converged = true
			break
		}
	}
	gs := reg.finalize(ic, η, s)
	state := TwoBodyState{
		R:     gs.position(ic),
		RNorm: gs.r,
		S:     s,
		DS:    ds,
	}
	state.V = gs.velocity(ic)
	state.Rdot = dot(state.R, state.V) / gs.r
	state.Beta = 2*ic.K/gs.r - dot(state.V, state.V)
	if !converged {
		return state, gs, NonConvergenceError{DS: math.Abs(ds), Iterations: maxSolverIters}
	}
	return state, gs, nil
}

// keplerDerivatives evaluates the universal Kepler equation residual and its
// first three derivatives with respect to s at the current estimate.
func (reg regime) keplerDerivatives(k, r0, η, β, h, s float64) (y, yp, ypp, yppp float64) {
	var g0, g1, g2 float64
	if reg == elliptic {
		sqβ := math.Sqrt(β)
		xx := sqβ * s
		sx, cx := math.Sincos(xx)
		g0 = cx
		g1 = sx / sqβ
		// 1-cos via the half angle, exact to full precision near β=0.
		sx2 := math.Sin(xx / 2)
		g2 = 2 * sx2 * sx2 / β
	} else {
		sqβ := math.Sqrt(-β)
		xx := sqβ * s
		g0 = math.Cosh(xx)
		g1 = sqβ * math.Sinh(xx) / -β
		sx2 := math.Sinh(xx / 2)
		g2 = -2 * sx2 * sx2 / β
	}
	g3 := (s - g1) / β
	y = r0*g1 + η*g2 + k*g3 - h
	yp = r0*g0 + η*g1 + k*g2
	ypp = (k-β*r0)*g1 + η*g0
	yppp = (k-β*r0)*g0 - β*η*g1
	return
}

// finalize computes the Gauss f and g functions from half-angle forms of the
// converged anomaly and fills in the geometric quantities of the step.
func (reg regime) finalize(ic InitialConditions, η, s float64) gauss {
	β := ic.Beta0
	gs := gauss{reg: reg, s: s, β: β}
	if reg == elliptic {
		sqβ := math.Sqrt(β)
		sx, cx := math.Sincos(sqβ * s / 2)
		gs.g1 = 2 * sx * cx / sqβ
		gs.g2 = 2 * sx * sx / β
		gs.g0 = 1 - β*gs.g2
		gs.f = 1 - (ic.K/ic.R0)*gs.g2
		gs.g = ic.R0*gs.g1 + η*gs.g2
	} else {
		sqβ := math.Sqrt(-β)
		x2 := sqβ * s / 2
		cx := math.Cosh(x2)
		sx := sqβ * math.Sinh(x2)
		gs.g1 = -2 * sx * cx / β
		gs.g2 = -2 * sx * sx / (β * β)
		gs.g0 = 1 + β*gs.g2
		gs.f = 1 + (ic.K/ic.R0)*gs.g2
		gs.g = ic.R0*gs.g1 - η*gs.g2
	}
	var pos [3]float64
	for i := 0; i < 3; i++ {
		pos[i] = gs.f*ic.R[i] + gs.g*ic.V[i]
	}
	gs.r = norm(pos)
	gs.fDot = -ic.K * gs.g1 / (gs.r * ic.R0)
	gs.gDot = ic.R0 * (gs.g0 + ic.Rdot0*gs.g1) / gs.r
	return gs
}

// position propagates the initial position through the Gauss functions.
func (gs gauss) position(ic InitialConditions) (pos [3]float64) {
	for i := 0; i < 3; i++ {
		pos[i] = gs.f*ic.R[i] + gs.g*ic.V[i]
	}
	return
}

// velocity propagates the initial velocity through the Gauss functions.
func (gs gauss) velocity(ic InitialConditions) (vel [3]float64) {
	for i := 0; i < 3; i++ {
		vel[i] = gs.fDot*ic.R[i] + gs.gDot*ic.V[i]
	}
	return
}
