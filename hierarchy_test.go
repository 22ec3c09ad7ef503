package ttvfast

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func TestHierarchyValidation(t *testing.T) {
	if _, err := NewHierarchy([]float64{1}, nil, 1); err == nil {
		t.Fatal("a single body is not a hierarchy")
	}
	if _, err := NewHierarchy([]float64{1, 1}, []Level{}, 1); err == nil {
		t.Fatal("missing levels should fail")
	}
	if _, err := NewHierarchy([]float64{1, -1}, []Level{{[]int{0}, []int{1}}}, 1); err == nil {
		t.Fatal("negative masses should fail")
	}
	if _, err := NewHierarchy([]float64{1, 1}, []Level{{[]int{0}, nil}}, 1); err == nil {
		t.Fatal("an empty split side should fail")
	}
	if _, err := NewHierarchy([]float64{1, 1}, []Level{{[]int{0}, []int{5}}}, 1); err == nil {
		t.Fatal("an out of range body index should fail")
	}
}

func TestHierarchyRoundTrip(t *testing.T) {
	h, err := NewHierarchy([]float64{1, 1e-3, 3e-4}, []Level{
		{[]int{0}, []int{1}},
		{[]int{0, 1}, []int{2}},
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	pos := [][3]float64{{0.1, 0.2, -0.1}, {1.1, 0.2, 0}, {-3, 5, 0.4}}
	vel := [][3]float64{{0, 0.01, 0}, {0.02, 1, 0.05}, {-0.4, -0.2, 0.01}}
	relPos, relVel := h.RelativeStates(pos, vel)
	backPos, backVel := h.CartesianStates(relPos, relVel)
	for i := 0; i < 3; i++ {
		for c := 0; c < 3; c++ {
			if !floats.EqualWithinAbs(backPos[i][c], pos[i][c], 1e-12) {
				t.Fatalf("body %d position[%d] did not round trip: %.15f != %.15f", i, c, backPos[i][c], pos[i][c])
			}
			if !floats.EqualWithinAbs(backVel[i][c], vel[i][c], 1e-12) {
				t.Fatalf("body %d velocity[%d] did not round trip: %.15f != %.15f", i, c, backVel[i][c], vel[i][c])
			}
		}
	}
}

// TestHierarchyTwoBody checks that advancing a two-body hierarchy matches the
// bare Kepler stepper applied to the relative problem.
func TestHierarchyTwoBody(t *testing.T) {
	h, err := NewHierarchy([]float64{1, 1}, []Level{{[]int{0}, []int{1}}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if h.GM(0) != 2 {
		t.Fatalf("GM=%f expected 2", h.GM(0))
	}
	if h.GM(-1) != 0 || h.GM(1) != 0 {
		t.Fatalf("out of range levels must yield 0, got %f and %f", h.GM(-1), h.GM(1))
	}
	// Circular relative orbit about a stationary barycenter.
	relV := math.Sqrt(h.GM(0))
	pos := [][3]float64{{-0.5, 0, 0}, {0.5, 0, 0}}
	vel := [][3]float64{{0, -relV / 2, 0}, {0, relV / 2, 0}}
	newPos, newVel, err := h.Advance(pos, vel, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	exp, err := Propagate(NewInitialConditions([3]float64{1, 0, 0}, [3]float64{0, relV, 0}, h.GM(0), 0.01))
	if err != nil {
		t.Fatal(err)
	}
	for c := 0; c < 3; c++ {
		rel := newPos[1][c] - newPos[0][c]
		if !floats.EqualWithinAbs(rel, exp.R[c], 1e-12) {
			t.Fatalf("relative position[%d] %.15f != %.15f", c, rel, exp.R[c])
		}
		relDot := newVel[1][c] - newVel[0][c]
		if !floats.EqualWithinAbs(relDot, exp.V[c], 1e-12) {
			t.Fatalf("relative velocity[%d] %.15f != %.15f", c, relDot, exp.V[c])
		}
		com := (newPos[0][c] + newPos[1][c]) / 2
		if !floats.EqualWithinAbs(com, 0, 1e-13) {
			t.Fatalf("barycenter moved to %.15f", com)
		}
	}
}

// TestHierarchyConservation advances a three-body Jacobi hierarchy and checks
// that the barycenter and the total angular momentum are preserved.
func TestHierarchyConservation(t *testing.T) {
	masses := []float64{1, 3e-6, 1e-3}
	h, err := NewHierarchy(masses, []Level{
		{[]int{0}, []int{1}},
		{[]int{0, 1}, []int{2}},
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Inner pair on a unit circular orbit, outer body bound at 5 separations.
	relPos := [][3]float64{{1, 0, 0}, {5, 0, 0}, {0, 0, 0}}
	relVel := [][3]float64{
		{0, math.Sqrt(h.GM(0)), 0},
		{0, math.Sqrt(h.GM(1) / 5), 0.01},
		{0, 0, 0},
	}
	pos, vel := h.CartesianStates(relPos, relVel)
	var initL [3]float64
	for i, m := range masses {
		l := cross(pos[i], vel[i])
		for c := 0; c < 3; c++ {
			initL[c] += m * l[c]
		}
	}
	for step := 0; step < 10; step++ {
		pos, vel, err = h.Advance(pos, vel, 0.05)
		if err != nil {
			t.Fatalf("step %d: %s", step, err)
		}
	}
	var finalL, com [3]float64
	var mTot float64
	for i, m := range masses {
		l := cross(pos[i], vel[i])
		for c := 0; c < 3; c++ {
			finalL[c] += m * l[c]
			com[c] += m * pos[i][c]
		}
		mTot += m
	}
	for c := 0; c < 3; c++ {
		if !floats.EqualWithinAbs(finalL[c], initL[c], 1e-12) {
			t.Fatalf("angular momentum[%d] drifted: %.15f != %.15f", c, finalL[c], initL[c])
		}
		if !floats.EqualWithinAbs(com[c]/mTot, 0, 1e-12) {
			t.Fatalf("barycenter[%d] drifted to %.15f", c, com[c]/mTot)
		}
	}
}
