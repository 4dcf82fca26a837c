package tlcal

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/porterma/tlcal/opt"
)

// Sampler names accepted by Calibrate.
const (
	SamplerParStudy   = "parstudy"
	SamplerInitial    = "initial" // one run at table values
	SamplerLHC        = "lhc"
	SamplerMonteCarlo = "montecarlo"
)

// Plan selects how Calibrate draws its samples.
type Plan struct {
	Sampler   string
	ValsPer   int   // par-study levels per varying parameter
	N         int   // samples (lhc, montecarlo), complexes (sce) or budget (rbf)
	Seed      int64 // 0 seeds from the clock
	OutputDir string
}

// Calibrate runs the study according to p.
func (s *Study) Calibrate(ctx context.Context, p Plan, done func(RunResult)) error {
	switch p.Sampler {
	case SamplerParStudy, "":
		return s.ParStudy(ctx, p.ValsPer, done)
	case SamplerInitial:
		return s.RunBatch(ctx, []SampleVector{s.Params.Initial()}, done)
	case SamplerLHC:
		return s.SampleLHC(ctx, p.N, opt.NewRNG(p.Seed), s.outFP(p, "samplespace.csv"), done)
	case SamplerMonteCarlo:
		return s.MonteCarlo(ctx, p.N, s.outFP(p, "MCsummary.csv"), done)
	case OptimizeSCE, OptimizeRBF:
		v, f, err := s.Optimize(ctx, p.Sampler, p.N, opt.NewRNG(p.Seed), done)
		if err != nil {
			return err
		}
		s.Logger.Info("optimum", "score", f)
		if p.OutputDir == "" {
			return nil
		}
		return writeParams(p.OutputDir, "optimum", s.Params.Symbols(), v)
	}
	return fmt.Errorf("Calibrate: unknown sampler %q", p.Sampler)
}

// Planned returns the number of runs p dispatches, -1 when unknown ahead
// of time.
func (s *Study) Planned(p Plan) int {
	switch p.Sampler {
	case SamplerParStudy, "":
		return s.NParStudy(p.ValsPer)
	case SamplerInitial:
		return 1
	case SamplerLHC, SamplerMonteCarlo:
		return p.N
	}
	return -1
}

func (s *Study) outFP(p Plan, name string) string {
	if p.OutputDir == "" {
		return ""
	}
	return filepath.Join(p.OutputDir, name)
}
