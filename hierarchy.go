package ttvfast

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Level is one binary split of the mobile diagram: the indices of the bodies
// on the primary and secondary sides of the split.
type Level struct {
	Primary, Secondary []int
}

// Hierarchy decomposes an n-body system into n-1 nested two-body problems. It
// carries the hierarchy transformation matrix mapping absolute Cartesian
// states to per-level relative states, and its inverse for the way back.
type Hierarchy struct {
	masses []float64
	levels []Level
	g      float64 // gravitational constant in the caller's unit system
	amat   *mat64.Dense
	ainv   *mat64.Dense
}

// NewHierarchy builds the hierarchy for the given masses and binary splits.
// The transformation matrix row of level i holds -m_j/m1 for body j on the
// primary side, +m_j/m2 on the secondary side and 0 elsewhere; the last row is
// the barycenter. The matrix is inverted once at construction.
func NewHierarchy(masses []float64, levels []Level, g float64) (*Hierarchy, error) {
	n := len(masses)
	if n < 2 {
		return nil, fmt.Errorf("hierarchy needs at least 2 bodies, got %d", n)
	}
	if len(levels) != n-1 {
		return nil, fmt.Errorf("hierarchy of %d bodies needs %d levels, got %d", n, n-1, len(levels))
	}
	for _, m := range masses {
		if m <= 0 {
			return nil, fmt.Errorf("masses must be strictly positive, got %v", masses)
		}
	}
	amat := mat64.NewDense(n, n, nil)
	for i, lvl := range levels {
		if len(lvl.Primary) == 0 || len(lvl.Secondary) == 0 {
			return nil, fmt.Errorf("level %d has an empty side", i)
		}
		m1, err := sumMasses(masses, lvl.Primary)
		if err != nil {
			return nil, fmt.Errorf("level %d: %s", i, err)
		}
		m2, err := sumMasses(masses, lvl.Secondary)
		if err != nil {
			return nil, fmt.Errorf("level %d: %s", i, err)
		}
		for _, j := range lvl.Primary {
			amat.Set(i, j, -masses[j]/m1)
		}
		for _, j := range lvl.Secondary {
			amat.Set(i, j, masses[j]/m2)
		}
	}
	mTot, _ := sumMasses(masses, nil)
	for j := 0; j < n; j++ {
		amat.Set(n-1, j, masses[j]/mTot)
	}
	var ainv mat64.Dense
	if err := ainv.Inverse(amat); err != nil {
		return nil, fmt.Errorf("hierarchy transformation matrix is singular: %s", err)
	}
	return &Hierarchy{masses, levels, g, amat, &ainv}, nil
}

// sumMasses sums the masses at the given indices, or all of them if nil.
func sumMasses(masses []float64, idx []int) (float64, error) {
	if idx == nil {
		total := 0.0
		for _, m := range masses {
			total += m
		}
		return total, nil
	}
	total := 0.0
	for _, j := range idx {
		if j < 0 || j >= len(masses) {
			return 0, fmt.Errorf("body index %d out of range", j)
		}
		total += masses[j]
	}
	return total, nil
}

// NumBodies returns the number of bodies in this hierarchy.
func (h *Hierarchy) NumBodies() int {
	return len(h.masses)
}

// GM returns the gravitational parameter G(m1+m2) of the two-body problem at
// the given level, combining the aggregate masses of both sides of the split.
// An out of range level yields 0.
func (h *Hierarchy) GM(level int) float64 {
	if level < 0 || level >= len(h.levels) {
		return 0
	}
	m1, _ := sumMasses(h.masses, h.levels[level].Primary)
	m2, _ := sumMasses(h.masses, h.levels[level].Secondary)
	return h.g * (m1 + m2)
}

// RelativeStates maps n absolute Cartesian states to the n-1 per-level
// relative states plus the barycentric state in the last slot.
func (h *Hierarchy) RelativeStates(pos, vel [][3]float64) (relPos, relVel [][3]float64) {
	return h.transform(h.amat, pos, vel)
}

// CartesianStates recombines the n-1 per-level relative states and the
// barycentric state into n absolute Cartesian states by applying the inverse
// of the hierarchy transformation matrix.
func (h *Hierarchy) CartesianStates(relPos, relVel [][3]float64) (pos, vel [][3]float64) {
	return h.transform(h.ainv, relPos, relVel)
}

func (h *Hierarchy) transform(m *mat64.Dense, pos, vel [][3]float64) ([][3]float64, [][3]float64) {
	n := h.NumBodies()
	in := mat64.NewDense(n, 6, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			in.Set(i, c, pos[i][c])
			in.Set(i, c+3, vel[i][c])
		}
	}
	var out mat64.Dense
	out.Mul(m, in)
	outPos := make([][3]float64, n)
	outVel := make([][3]float64, n)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			outPos[i][c] = out.At(i, c)
			outVel[i][c] = out.At(i, c+3)
		}
	}
	return outPos, outVel
}

// Advance applies the exact Kepler drift to every level's relative two-body
// problem for the given timestep and returns the recombined absolute Cartesian
// states. The barycenter drifts linearly. Any stepper failure aborts the whole
// step and is surfaced to the caller untouched.
func (h *Hierarchy) Advance(pos, vel [][3]float64, step float64) ([][3]float64, [][3]float64, error) {
	n := h.NumBodies()
	if len(pos) != n || len(vel) != n {
		return nil, nil, fmt.Errorf("expected %d states, got %d positions and %d velocities", n, len(pos), len(vel))
	}
	relPos, relVel := h.RelativeStates(pos, vel)
	for i := 0; i < n-1; i++ {
		state, err := Propagate(NewInitialConditions(relPos[i], relVel[i], h.GM(i), step))
		if err != nil {
			return nil, nil, err
		}
		relPos[i] = state.R
		relVel[i] = state.V
	}
	for c := 0; c < 3; c++ {
		relPos[n-1][c] += relVel[n-1][c] * step
	}
	newPos, newVel := h.CartesianStates(relPos, relVel)
	return newPos, newVel, nil
}
