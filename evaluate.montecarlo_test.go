package tlcal

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/porterma/tlcal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudySampleLHC(t *testing.T) {
	s, calib := newTestStudy(t, stateTL, nil)
	fp := filepath.Join(calib, "samplespace.csv")
	require.NoError(t, s.SampleLHC(context.Background(), 3, opt.NewRNG(7), fp, nil))
	assert.Equal(t, 3, s.Results().Len())

	b, err := os.ReadFile(fp)
	require.NoError(t, err)
	lns := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lns, 3)
	assert.True(t, strings.HasPrefix(lns[0], "1,"))

	for _, r := range s.Results().Runs() {
		v, ok := s.Sample(r.RunID)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v["k"], 3.)
		assert.LessOrEqual(t, v["k"], 9.)
	}
}

func TestStudySamplersNeedWork(t *testing.T) {
	s, _ := newTestStudy(t, stateTL, nil)
	ctx := context.Background()
	assert.Error(t, s.SampleLHC(ctx, 0, opt.NewRNG(1), "", nil))
	assert.Error(t, s.MonteCarlo(ctx, 0, "", nil))
	_, _, err := s.Optimize(ctx, "annealing", 10, opt.NewRNG(1), nil)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Results().Len())
}

func TestStudyMonteCarloSummary(t *testing.T) {
	s, calib := newTestStudy(t, stateTL, nil)
	p := Plan{Sampler: SamplerMonteCarlo, N: 4, OutputDir: calib}
	assert.Equal(t, 4, s.Planned(p))
	n := 0
	require.NoError(t, s.Calibrate(context.Background(), p, func(RunResult) { n++ }))
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, s.Results().Len())

	b, err := os.ReadFile(filepath.Join(calib, "MCsummary.csv"))
	require.NoError(t, err)
	lns := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lns, 5)
	assert.Equal(t, "rank(of 4),run,score,k", lns[0])

	seen := make(map[string]bool)
	prev := -1.
	for i, ln := range lns[1:] {
		c := strings.Split(ln, ",")
		require.Len(t, c, 4)
		assert.Equal(t, strconv.Itoa(i+1), c[0])

		// every ranked row points at the run that produced it
		r, ok := s.Results().Run(c[1])
		require.True(t, ok, "unknown run %q", c[1])
		assert.False(t, seen[c[1]])
		seen[c[1]] = true
		assert.Equal(t, FormatValue(r.Score()), c[2])
		v, _ := s.Sample(c[1])
		assert.Equal(t, FormatValue(v["k"]), c[3])

		f, err := strconv.ParseFloat(c[2], 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f, prev)
		prev = f
	}
}

func TestStudyOptimizeSurrogate(t *testing.T) {
	s, calib := newTestStudy(t, stateTL, nil)
	p := Plan{Sampler: OptimizeRBF, N: 8, Seed: 11, OutputDir: calib}
	require.NoError(t, s.Calibrate(context.Background(), p, nil))
	require.Greater(t, s.Results().Len(), 0)

	b, err := os.ReadFile(filepath.Join(calib, paramsFile))
	require.NoError(t, err)
	lns := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lns, 3)
	assert.Equal(t, "optimum", strings.TrimSpace(lns[1]))
	kv := strings.Split(strings.TrimSpace(lns[2]), "\t")
	require.Len(t, kv, 2)
	assert.Equal(t, "k", kv[0])
	k, err := strconv.ParseFloat(kv[1], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, k, 3.)
	assert.LessOrEqual(t, k, 9.)
}

func TestStudyOptimizeSCE(t *testing.T) {
	if testing.Short() {
		t.Skip("shuffled complex evolution runs the model many times")
	}
	s, _ := newTestStudy(t, stateTL, nil)
	v, f, err := s.Optimize(context.Background(), OptimizeSCE, 2, opt.NewRNG(5), nil)
	require.NoError(t, err)
	assert.False(t, IsFailed(f))
	assert.GreaterOrEqual(t, v["k"], 3.)
	assert.Less(t, v["k"], 9.)

	best, ok := s.Results().Best()
	require.True(t, ok)
	assert.GreaterOrEqual(t, f, best.Score()-1e-9)
}
