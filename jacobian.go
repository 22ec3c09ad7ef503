package ttvfast

import "github.com/gonum/matrix/mat64"

// newJacobian assembles the 7x7 sensitivity matrix of the propagated
// (position, velocity, K) with respect to the initial (position, velocity, K)
// from the finalized quantities of a converged step.
//
// The generalized anomaly s and the energy parameter β depend implicitly on
// the initial scalars through the universal Kepler equation and the definition
// of β. Both are differentiated in closed form with respect to the independent
// intermediates (r0, η, β, K) where η = r0·ṙ0, then chain-ruled through the
// explicit f, g, ḟ, ġ propagation formulas.
func newJacobian(ic InitialConditions, gs gauss) *mat64.Dense {
	jac := mat64.NewDense(7, 7, nil)
	k, r0, β, s, r := ic.K, ic.R0, ic.Beta0, gs.s, gs.r
	η := ic.R0 * ic.Rdot0
	g0, g1, g2, g3 := gs.universal()

	// Partials of the Stumpff-like scalars with respect to β at fixed s.
	dg0dβ := -s * g1 / 2
	dg1dβ := (s*g0 - g1) / (2 * β)
	dg2dβ := (s*g1 - 2*g2) / (2 * β)
	dg3dβ := (3*g1 - s*g0 - 2*s) / (2 * β * β)

	// Implicit partials of s from the Kepler equation; its s-derivative is r.
	dsdp := [4]float64{ // p ranges over (r0, η, β, k)
		-g1 / r,
		-g2 / r,
		-(r0*dg1dβ + η*dg2dβ + k*dg3dβ) / r,
		-g3 / r,
	}

	drds := (k-β*r0)*g1 + η*g0 // second derivative of the Kepler residual
	dgds := r0*g0 + η*g1       // s-derivative of the Gauss g function

	dfdp := [4]float64{
		k*g2/(r0*r0) - (k/r0)*g1*dsdp[0],
		-(k / r0) * g1 * dsdp[1],
		-(k / r0) * (dg2dβ + g1*dsdp[2]),
		-g2/r0 - (k/r0)*g1*dsdp[3],
	}
	dgdp := [4]float64{
		g1 + dgds*dsdp[0],
		g2 + dgds*dsdp[1],
		r0*dg1dβ + η*dg2dβ + dgds*dsdp[2],
		dgds * dsdp[3],
	}
	// Resulting separation r = r0·g0 + η·g1 + K·g2, including the s dependence.
	drdp := [4]float64{
		g0 + drds*dsdp[0],
		g1 + drds*dsdp[1],
		r0*dg0dβ + η*dg1dβ + k*dg2dβ + drds*dsdp[2],
		g2 + drds*dsdp[3],
	}
	dg1dp := [4]float64{g0 * dsdp[0], g0 * dsdp[1], g0*dsdp[2] + dg1dβ, g0 * dsdp[3]}
	dg2dp := [4]float64{g1 * dsdp[0], g1 * dsdp[1], g1*dsdp[2] + dg2dβ, g1 * dsdp[3]}
	dr0dp := [4]float64{1, 0, 0, 0}
	dkdp := [4]float64{0, 0, 0, 1}

	// ḟ = -K·g1/(r·r0) and ġ = 1 - K·g2/r.
	var dfDotdp, dgDotdp [4]float64
	for p := 0; p < 4; p++ {
		dfDotdp[p] = -dkdp[p]*g1/(r*r0) - k*dg1dp[p]/(r*r0) +
			k*g1*(drdp[p]*r0+dr0dp[p]*r)/(r*r*r0*r0)
		dgDotdp[p] = -dkdp[p]*g2/r - k*dg2dp[p]/r + k*g2*drdp[p]/(r*r)
	}

	for j := 0; j < 7; j++ {
		// Partials of the intermediates with respect to input column j.
		var pr0, pη, pβ, pk float64
		switch {
		case j < 3:
			pr0 = ic.R[j] / r0
			pη = ic.V[j]
			pβ = -2 * k * ic.R[j] / (r0 * r0 * r0)
		case j < 6:
			pη = ic.R[j-3]
			pβ = -2 * ic.V[j-3]
		default:
			pβ = 2 / r0
			pk = 1
		}
		df := dfdp[0]*pr0 + dfdp[1]*pη + dfdp[2]*pβ + dfdp[3]*pk
		dg := dgdp[0]*pr0 + dgdp[1]*pη + dgdp[2]*pβ + dgdp[3]*pk
		dfDot := dfDotdp[0]*pr0 + dfDotdp[1]*pη + dfDotdp[2]*pβ + dfDotdp[3]*pk
		dgDot := dgDotdp[0]*pr0 + dgDotdp[1]*pη + dgDotdp[2]*pβ + dgDotdp[3]*pk
		for i := 0; i < 3; i++ {
			jac.Set(i, j, ic.R[i]*df+ic.V[i]*dg)
			jac.Set(i+3, j, ic.R[i]*dfDot+ic.V[i]*dgDot)
		}
		// Diagonal blocks are seeded by the Gauss functions themselves.
		if j < 3 {
			jac.Set(j, j, jac.At(j, j)+gs.f)
			jac.Set(j+3, j, jac.At(j+3, j)+gs.fDot)
		} else if j < 6 {
			jac.Set(j-3, j, jac.At(j-3, j)+gs.g)
			jac.Set(j, j, jac.At(j, j)+gs.gDot)
		}
	}
	jac.Set(6, 6, 1) // the mass parameter is conserved by the step
	return jac
}
