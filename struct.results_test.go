package tlcal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsTableOrderIndependent(t *testing.T) {
	rs := []RunResult{
		{RunID: "par.2", Seq: 2, RMSE: map[string]float64{"100": 0.5, "20": 1.5}},
		{RunID: "par.10", Seq: 10, Err: errors.New("no output")},
		{RunID: "par.1", Seq: 1, RMSE: map[string]float64{"100": 0.25, "abc": 2}},
	}
	want := "entity,par.1,par.2,par.10\n" +
		"20,+Inf,1.5,+Inf\n" +
		"100,0.25,0.5,+Inf\n" +
		"abc,2,+Inf,+Inf\n"

	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		rt := NewResultsTable()
		var wg sync.WaitGroup
		for _, i := range order {
			wg.Add(1)
			go func(r RunResult) {
				defer wg.Done()
				rt.Add(r)
			}(rs[i])
		}
		wg.Wait()

		var buf bytes.Buffer
		require.NoError(t, rt.Write(&buf))
		if diff := cmp.Diff(want, buf.String()); diff != "" {
			t.Errorf("order %v: results mismatch (-want +got):\n%s", order, diff)
		}
	}
}

func TestResultsTableAllFailed(t *testing.T) {
	rt := NewResultsTable()
	rt.Add(RunResult{RunID: "par.1", Seq: 1, Err: errors.New("boom")})
	rt.Add(RunResult{RunID: "par.2", Seq: 2, Err: errors.New("boom")})

	var buf bytes.Buffer
	require.NoError(t, rt.Write(&buf))
	assert.Equal(t, "entity,par.1,par.2\n*,+Inf,+Inf\n", buf.String())

	_, ok := rt.Best()
	assert.False(t, ok)
}

func TestResultsTableLookup(t *testing.T) {
	rt := NewResultsTable()
	rt.Add(RunResult{RunID: "par.1", Seq: 1, RMSE: map[string]float64{"100": 0.3, "200": 0.5}})
	rt.Add(RunResult{RunID: "par.2", Seq: 2, RMSE: map[string]float64{"100": 0.1, "200": 0.2}})
	rt.Add(RunResult{RunID: "par.3", Seq: 3, Err: errors.New("boom")})

	assert.Equal(t, 3, rt.Len())
	v, ok := rt.Get("par.1", "200")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
	v, ok = rt.Get("par.3", "200")
	require.True(t, ok)
	assert.True(t, IsFailed(v))
	_, ok = rt.Get("par.9", "200")
	assert.False(t, ok)

	best, ok := rt.Best()
	require.True(t, ok)
	assert.Equal(t, "par.2", best.RunID)
	assert.InDelta(t, 0.15, best.Score(), 1e-12)
}

func TestFailedMarkerWorseThanAnyRMSE(t *testing.T) {
	assert.True(t, FailedRMSE > 1e308)
	assert.True(t, IsFailed(FailedRMSE))
	assert.False(t, IsFailed(1e308))
	assert.True(t, IsFailed(RunResult{RunID: "x", RMSE: map[string]float64{}}.Score()))
}

func TestWriteResults(t *testing.T) {
	rt := NewResultsTable()
	rt.Add(RunResult{RunID: "par.1", Seq: 1, RMSE: map[string]float64{"100": 0.5}})
	fp := filepath.Join(t.TempDir(), "parstudy_results.csv")
	require.NoError(t, WriteResults(fp, rt))
	b, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "entity,par.1\n100,0.5\n", string(b))

	assert.Error(t, WriteResults(filepath.Join(t.TempDir(), "missing", "r.csv"), rt))
}
