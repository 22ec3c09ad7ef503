package ttvfast

import "math"

const oneThird = 1 / 3.

// quarticStep returns the correction ds to the current estimate of a root given
// the residual y and its first three derivatives evaluated there, such that
// s+ds approximates the root to fourth order. The expression is rearranged to
// use a single division.
func quarticStep(y, yp, ypp, yppp float64) (float64, error) {
	num := y * yp
	den1 := yp*yp - 0.5*y*ypp
	den2 := yp*den1*den1 - 0.5*num*(ypp*den1-oneThird*num*yppp)
	ds := -y * den1 * den1 / den2
	if math.IsNaN(ds) || math.IsInf(ds, 0) {
		return 0, SingularJacobianError{Den: den2}
	}
	return ds, nil
}
