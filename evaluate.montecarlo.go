package tlcal

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/maseology/mmio"
	"github.com/maseology/montecarlo"
	"github.com/porterma/tlcal/opt"
)

// ParStudy evaluates the full-factorial grid of nvals levels per varying
// parameter.
func (s *Study) ParStudy(ctx context.Context, nvals int, done func(RunResult)) error {
	vs := toVectors(opt.ParStudy(s.space(), nvals))
	s.Logger.Info("par-study", "levels", nvals, "samples", len(vs))
	return s.RunBatch(ctx, vs, done)
}

// NParStudy returns the number of runs ParStudy would dispatch.
func (s *Study) NParStudy(nvals int) int {
	n := 1
	for _, d := range s.space() {
		n *= len(d.Levels(nvals))
	}
	return n
}

// SampleLHC evaluates n Latin-hypercube samples. When spaceFP is given the
// unit sample space is saved there, one line per sample.
func (s *Study) SampleLHC(ctx context.Context, n int, rng *rand.Rand, spaceFP string, done func(RunResult)) error {
	sp := s.space()
	U, mvs := opt.LHC(sp, n, rng)
	if len(U) == 0 {
		return fmt.Errorf("SampleLHC: nothing to sample (%d samples, %d varying parameters)", n, sp.NVary())
	}
	if spaceFP != "" {
		lns := make([]string, len(U))
		for k, u := range U {
			lns[k] = fmt.Sprint(k + 1)
			for _, v := range u {
				lns[k] += fmt.Sprintf(",%f", v)
			}
		}
		mmio.WriteLines(spaceFP, lns)
	}
	s.Logger.Info("latin hypercube", "samples", len(U), "dimensions", sp.NVary())
	return s.RunBatch(ctx, toVectors(mvs), done)
}

// MonteCarlo evaluates n unbiased random samples and writes them to
// summaryFP ranked from best to worst score.
func (s *Study) MonteCarlo(ctx context.Context, n int, summaryFP string, done func(RunResult)) error {
	sp := s.space()
	p := sp.NVary()
	if n <= 0 || p == 0 {
		return fmt.Errorf("MonteCarlo: nothing to sample (%d samples, %d varying parameters)", n, p)
	}

	var mu sync.Mutex
	ids := make(map[string]string, n)
	gen := func(u []float64) float64 {
		m, err := sp.Vector(u)
		if err != nil {
			return FailedRMSE
		}
		r := s.Evaluate(ctx, SampleVector(m))
		mu.Lock()
		ids[fmt.Sprint(u)] = r.RunID
		if done != nil {
			done(r)
		}
		mu.Unlock()
		return r.Score()
	}
	s.Logger.Info("monte carlo", "samples", n, "dimensions", p)
	u, f, d := montecarlo.RankedUnBiased(gen, p, n)
	if err := ctx.Err(); err != nil {
		return err
	}
	if summaryFP == "" {
		return nil
	}

	syms := make([]string, 0, p)
	for _, dm := range sp {
		if dm.Vary {
			syms = append(syms, dm.Symbol)
		}
	}
	csvw := mmio.NewCSVwriter(summaryFP)
	defer csvw.Close()
	hdr := fmt.Sprintf("rank(of %d),run,score", n)
	for _, sym := range syms {
		hdr += "," + sym
	}
	if err := csvw.WriteHead(hdr); err != nil {
		return fmt.Errorf("MonteCarlo: %w", err)
	}
	for i, dd := range d {
		m, _ := sp.Vector(u[dd])
		ln := []interface{}{i + 1, ids[fmt.Sprint(u[dd])], FormatValue(f[dd])}
		for _, sym := range syms {
			ln = append(ln, FormatValue(m[sym]))
		}
		csvw.WriteLine(ln...)
	}
	return nil
}

func (s *Study) space() opt.Space { return s.Params.Space(s.LogScale...) }

func toVectors(ms []map[string]float64) []SampleVector {
	vs := make([]SampleVector, len(ms))
	for i, m := range ms {
		vs[i] = SampleVector(m)
	}
	return vs
}
