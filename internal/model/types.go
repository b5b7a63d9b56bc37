// Package model defines shared data structures.
package model

import (
	"fmt"
	"math"
	"time"
)

// FitConfig defines the fixed settings of a fitting run.
type FitConfig struct {
	Ref          float64
	Sup          float64
	MagMin       float64
	MagMax       float64
	LMR          string
	UseIntervals bool
	Likelihood   bool
	Workers      int
}

// Range is an inclusive grid axis of N values between Min and Max.
// Log spaces values geometrically and needs Min > 0.
type Range struct {
	Min float64
	Max float64
	N   int
	Log bool
}

// Fixed returns a single-value range.
func Fixed(v float64) Range {
	return Range{Min: v, Max: v, N: 1}
}

// Validate rejects ranges that cannot be expanded.
func (r Range) Validate() error {
	if r.N < 1 {
		return fmt.Errorf("range needs at least one value, got %d", r.N)
	}
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return fmt.Errorf("range bounds must be finite")
	}
	if r.Max < r.Min {
		return fmt.Errorf("range max %g is below min %g", r.Max, r.Min)
	}
	if r.Log && r.Min <= 0 {
		return fmt.Errorf("log range needs min > 0, got %g", r.Min)
	}
	return nil
}

// Values expands the range. N == 1 yields Min.
func (r Range) Values() []float64 {
	if r.N <= 0 {
		return nil
	}
	out := make([]float64, r.N)
	if r.N == 1 {
		out[0] = r.Min
		return out
	}
	last := float64(r.N - 1)
	if r.Log {
		lo := math.Log(r.Min)
		step := (math.Log(r.Max) - lo) / last
		for i := range out {
			out[i] = math.Exp(lo + float64(i)*step)
		}
		out[0] = r.Min
		out[r.N-1] = r.Max
		return out
	}
	step := (r.Max - r.Min) / last
	for i := range out {
		out[i] = r.Min + float64(i)*step
	}
	out[r.N-1] = r.Max
	return out
}

// Grid holds one range per model parameter.
type Grid struct {
	B     Range
	Alpha Range
	P     Range
	C     Range
	Aint  Range
	A     Range
	Ams   Range
}

// Size returns the number of grid points.
func (g Grid) Size() int {
	n := 1
	for _, r := range g.Ranges() {
		n *= maxInt(r.N, 0)
	}
	return n
}

// Ranges returns the axes in parameter order.
func (g Grid) Ranges() []Range {
	return []Range{g.B, g.Alpha, g.P, g.C, g.Aint, g.A, g.Ams}
}

// ParamNames lists the parameters in grid order.
var ParamNames = []string{"b", "alpha", "p", "c", "aint", "a", "ams"}

// SweepPoint is one evaluated grid point.
type SweepPoint struct {
	B       float64
	Alpha   float64
	P       float64
	C       float64
	Aint    float64
	A       float64
	Ams     float64
	LogLike float64
}

// Params returns the parameter values in grid order.
func (p SweepPoint) Params() []float64 {
	return []float64{p.B, p.Alpha, p.P, p.C, p.Aint, p.A, p.Ams}
}

// SweepSummary describes a stored sweep.
type SweepSummary struct {
	ID           int64
	Name         string
	HistoryPath  string
	CreatedAt    time.Time
	Events       int
	Intervals    int
	Points       int
	DurationMs   int64
	Config       FitConfig
	Best         SweepPoint
	NonFinite    int
}

// SweepResult is the outcome of running a grid.
type SweepResult struct {
	Points    []SweepPoint
	Best      SweepPoint
	HasBest   bool
	NonFinite int
	Elapsed   time.Duration
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
