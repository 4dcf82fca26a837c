package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpace = Space{
	{Symbol: "a", Value: 1, Min: 0, Max: 2, Vary: true},
	{Symbol: "fixed", Value: 7, Min: 0, Max: 10},
	{Symbol: "b", Value: 10, Min: 10, Max: 1000, Vary: true, Log: true},
}

func TestVector(t *testing.T) {
	assert.Equal(t, 2, testSpace.NVary())
	m, err := testSpace.Vector([]float64{0.5, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1., m["a"], 1e-12)
	assert.Equal(t, 7., m["fixed"])
	assert.InDelta(t, 10., m["b"], 1e-6)

	m, err = testSpace.Vector([]float64{1, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 2., m["a"], 1e-12)
	assert.InDelta(t, 100., m["b"], 1e-6)

	_, err = testSpace.Vector([]float64{0.5})
	assert.Error(t, err)
}

func TestLevels(t *testing.T) {
	d := Dim{Symbol: "a", Value: 1, Min: 0, Max: 2, Vary: true}
	assert.Equal(t, []float64{1}, d.Levels(1))
	assert.Equal(t, []float64{0, 2}, d.Levels(2))
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 1.5, 2}, d.Levels(5), 1e-12)
	assert.Equal(t, []float64{7}, Dim{Value: 7, Min: 0, Max: 10}.Levels(5))
}

func TestParStudy(t *testing.T) {
	vs := ParStudy(testSpace, 3)
	require.Len(t, vs, 9)
	// first dimension varies slowest
	assert.Equal(t, 0., vs[0]["a"])
	assert.Equal(t, 0., vs[2]["a"])
	assert.Equal(t, 1., vs[3]["a"])
	assert.InDelta(t, 10., vs[0]["b"], 1e-6)
	assert.InDelta(t, 100., vs[1]["b"], 1e-6)
	assert.Equal(t, 1000., vs[2]["b"])

	seen := make(map[[2]float64]bool)
	for _, v := range vs {
		assert.Equal(t, 7., v["fixed"])
		seen[[2]float64{v["a"], v["b"]}] = true
	}
	assert.Len(t, seen, 9)

	assert.Len(t, ParStudy(testSpace, 1), 1)
	assert.Nil(t, ParStudy(nil, 3))
}

func TestLHC(t *testing.T) {
	U, vs := LHC(testSpace, 20, NewRNG(42))
	require.Len(t, U, 20)
	require.Len(t, vs, 20)
	for k, u := range U {
		require.Len(t, u, 2)
		for _, x := range u {
			assert.True(t, x >= 0 && x <= 1, "u=%v", x)
		}
		assert.GreaterOrEqual(t, vs[k]["a"], 0.)
		assert.LessOrEqual(t, vs[k]["a"], 2.)
		assert.Equal(t, 7., vs[k]["fixed"])
	}

	U, vs = LHC(Space{{Symbol: "fixed", Value: 1}}, 5, NewRNG(1))
	assert.Nil(t, U)
	assert.Nil(t, vs)
}
