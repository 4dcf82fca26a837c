package tlcal

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/maseology/glbopt"
)

// Optimizers driving Study.Optimize.
const (
	OptimizeSCE = "sce" // shuffled complex evolution
	OptimizeRBF = "rbf" // radial-basis-function surrogate
)

// Optimize searches the varying parameters for the lowest score. n is the
// number of complexes for SCE (default GOMAXPROCS) or the evaluation budget
// for the surrogate. It returns the best vector found and its score.
func (s *Study) Optimize(ctx context.Context, method string, n int, rng *rand.Rand, done func(RunResult)) (SampleVector, float64, error) {
	sp := s.space()
	p := sp.NVary()
	if p == 0 {
		return nil, FailedRMSE, fmt.Errorf("Optimize: no varying parameters")
	}
	var mu sync.Mutex
	gen := func(u []float64) float64 {
		if ctx.Err() != nil {
			return FailedRMSE
		}
		m, err := sp.Vector(u)
		if err != nil {
			return FailedRMSE
		}
		r := s.Evaluate(ctx, SampleVector(m))
		if done != nil {
			mu.Lock()
			done(r)
			mu.Unlock()
		}
		return r.Score()
	}

	var uFinal []float64
	var f float64
	switch method {
	case OptimizeSCE:
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		s.Logger.Info("optimizing", "method", "SCE", "complexes", n, "dimensions", p)
		uFinal, f = glbopt.SCE(n, p, rng, gen, true)
	case OptimizeRBF:
		if n <= 0 {
			n = 500
		}
		s.Logger.Info("optimizing", "method", "RBF surrogate", "evaluations", n, "dimensions", p)
		uFinal, f = glbopt.SurrogateRBF(n, p, rng, gen)
	default:
		return nil, FailedRMSE, fmt.Errorf("Optimize: unknown method %q", method)
	}
	if err := ctx.Err(); err != nil {
		return nil, FailedRMSE, err
	}
	m, err := sp.Vector(uFinal)
	if err != nil {
		return nil, FailedRMSE, err
	}
	return SampleVector(m), f, nil
}
