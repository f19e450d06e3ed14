// Package randstream implements the simulator's seeded random-number
// service: every distribution the core draws from (scheduler backoffs,
// the miner's block-interval/block-size model, Kadcast/Mincast jitter)
// goes through a Stream so that a fixed seed and a fixed call sequence
// reproduce byte-identical output.
package randstream

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream is a single seeded random source. It is not safe for concurrent
// use — the simulator is single-threaded (spec.md §5) so every Stream is
// owned by exactly one scheduler.
type Stream struct {
	src *rand.Rand
}

// New creates a Stream seeded from root. Reseeding mid-simulation is
// forbidden (spec.md §4.2); there is deliberately no Reseed method.
func New(seed int64) *Stream {
	return &Stream{src: rand.New(rand.NewSource(seed))}
}

// Uniform draws a float64 uniformly from [min, max).
func (s *Stream) Uniform(min, max float64) float64 {
	return distuv.Uniform{Min: min, Max: max, Src: s.src}.Rand()
}

// UniformInt draws a uint64 uniformly from [min, max) (half-open — see
// spec.md §4.2: "implementation may use [min, max), document one and
// stick"). Panics if max <= min.
func (s *Stream) UniformInt(min, max uint64) uint64 {
	if max <= min {
		panic(fmt.Sprintf("randstream: UniformInt requires max > min, got [%d, %d)", min, max))
	}
	span := max - min
	return min + (s.src.Uint64() % span)
}

// Uint64 draws a uniform uint64 across the full range, used for block IDs
// and node IDs where no bound is needed.
func (s *Stream) Uint64() uint64 {
	return s.src.Uint64()
}

// Normal draws from N(mean, variance). variance must be >= 0.
func (s *Stream) Normal(mean, variance float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: math.Sqrt(variance), Src: s.src}.Rand()
}

// Discrete draws an index in [0, len(weights)) with probability
// proportional to weights[i]. Panics if weights is empty or all-zero.
func (s *Stream) Discrete(weights []float64) int {
	if len(weights) == 0 {
		panic("randstream: Discrete requires at least one weight")
	}
	return int(distuv.Categorical{Weights: weights, Src: s.src}.Rand())
}

// PiecewiseLinear draws a sample from a density that is piecewise-linear
// over intervals[i] with density values densities[i] at the interval
// boundaries (len(intervals) == len(densities), at least 2 points).
// No package in this repo calls it; the geo topology draws regions with
// Discrete. gonum's distuv
// package has no ready-made piecewise-linear density sampler, so this
// builds the CDF directly and inverts it by linear interpolation — the
// same technique the rest of this package delegates to gonum for the
// standard families.
func (s *Stream) PiecewiseLinear(intervals, densities []float64) float64 {
	if len(intervals) != len(densities) || len(intervals) < 2 {
		panic("randstream: PiecewiseLinear requires matching intervals/densities, at least 2 points")
	}
	// Trapezoid-rule cumulative mass up to each breakpoint.
	cdf := make([]float64, len(intervals))
	for i := 1; i < len(intervals); i++ {
		dx := intervals[i] - intervals[i-1]
		area := dx * (densities[i] + densities[i-1]) / 2
		cdf[i] = cdf[i-1] + area
	}
	total := cdf[len(cdf)-1]
	if total <= 0 {
		panic("randstream: PiecewiseLinear requires positive total density")
	}
	target := s.Uniform(0, total)
	idx := sort.SearchFloat64s(cdf, target)
	if idx == 0 {
		return intervals[0]
	}
	if idx >= len(cdf) {
		return intervals[len(intervals)-1]
	}
	// Linear interpolation within the bracketing segment.
	lo, hi := cdf[idx-1], cdf[idx]
	frac := 0.0
	if hi > lo {
		frac = (target - lo) / (hi - lo)
	}
	return intervals[idx-1] + frac*(intervals[idx]-intervals[idx-1])
}

// Exponential draws an exponentially-distributed delay with the given
// mean, via inverse-transform sampling on a uniform in [0, 1) — spelled
// out manually (rather than delegated to distuv.Exponential) because the
// miner inter-arrival testable property (spec.md §8) requires an exact,
// documented algorithm: negative results are impossible by construction
// since log1p of a value in (-1, 0] is <= 0.
func (s *Stream) Exponential(mean float64) float64 {
	u := s.Uniform(0, 1)
	return -math.Log1p(-u) * mean
}
