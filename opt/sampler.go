// Package opt maps unit-hypercube samples onto parameter bounds and builds
// sampling plans: a par-study grid and a Latin hypercube.
package opt

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/maseology/mmaths"
	"github.com/maseology/montecarlo/smpln"
	mrg63k3a "github.com/maseology/pnrg/MRG63k3a"
)

// Dim is one parameter dimension. Fixed dimensions (Vary false) always take
// Value.
type Dim struct {
	Symbol          string
	Value, Min, Max float64
	Vary            bool
	Log             bool // sample in log space, requires Min > 0
}

// Space is an ordered set of dimensions.
type Space []Dim

// NVary returns the number of sampled dimensions.
func (s Space) NVary() int {
	n := 0
	for _, d := range s {
		if d.Vary {
			n++
		}
	}
	return n
}

// Transform maps u in [0,1] onto the bounds of d.
func (d Dim) Transform(u float64) float64 {
	if d.Log && d.Min > 0. {
		return mmaths.LogLinearTransform(d.Min, d.Max, u)
	}
	return mmaths.LinearTransform(d.Min, d.Max, u)
}

// Vector maps u, one value per varying dimension in order, onto a full
// symbol→value vector.
func (s Space) Vector(u []float64) (map[string]float64, error) {
	if len(u) != s.NVary() {
		return nil, fmt.Errorf("opt.Vector: %d values given for %d varying dimensions", len(u), s.NVary())
	}
	m, j := make(map[string]float64, len(s)), 0
	for _, d := range s {
		if !d.Vary {
			m[d.Symbol] = d.Value
			continue
		}
		m[d.Symbol] = d.Transform(u[j])
		j++
	}
	return m, nil
}

// Levels returns nvals evenly spaced values over [Min, Max]; a fixed
// dimension, or nvals < 2, yields Value only.
func (d Dim) Levels(nvals int) []float64 {
	if !d.Vary || nvals < 2 {
		return []float64{d.Value}
	}
	v := make([]float64, nvals)
	for i := range v {
		v[i] = d.Transform(float64(i) / float64(nvals-1))
	}
	v[nvals-1] = d.Max
	return v
}

// ParStudy returns the Cartesian product of every dimension's levels. The
// first dimension varies slowest.
func ParStudy(s Space, nvals int) []map[string]float64 {
	if len(s) == 0 {
		return nil
	}
	lvls := make([][]float64, len(s))
	n := 1
	for i, d := range s {
		lvls[i] = d.Levels(nvals)
		n *= len(lvls[i])
	}
	out := make([]map[string]float64, n)
	for k := 0; k < n; k++ {
		m, r := make(map[string]float64, len(s)), k
		for i := len(s) - 1; i >= 0; i-- {
			l := lvls[i]
			m[s[i].Symbol] = l[r%len(l)]
			r /= len(l)
		}
		out[k] = m
	}
	return out
}

// LHC draws a Latin-hypercube plan of n samples over the varying dimensions.
// U[k] holds the unit sample of vector k.
func LHC(s Space, n int, rng *rand.Rand) (U [][]float64, vecs []map[string]float64) {
	p := s.NVary()
	if n <= 0 || p == 0 {
		return nil, nil
	}
	sp := smpln.NewLHC(rng, n, p, false)
	U, vecs = make([][]float64, n), make([]map[string]float64, n)
	for k := 0; k < n; k++ {
		ut := make([]float64, p)
		for j := 0; j < p; j++ {
			ut[j] = sp.U[j][k]
		}
		U[k] = ut
		vecs[k], _ = s.Vector(ut)
	}
	return
}

// NewRNG returns an MRG63k3a-backed generator; seed 0 seeds from the clock.
func NewRNG(seed int64) *rand.Rand {
	rng := rand.New(mrg63k3a.New())
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng.Seed(seed)
	return rng
}
