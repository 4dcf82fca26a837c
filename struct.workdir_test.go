package tlcal

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkdirsPolicy(t *testing.T) {
	_, err := NewWorkdirs(t.TempDir(), "par", "archive")
	assert.Error(t, err)

	w, err := NewWorkdirs(t.TempDir(), "", KeepReuse)
	require.NoError(t, err)
	assert.Equal(t, "par", w.Base)
	assert.True(t, w.Reuse)
	assert.Equal(t, "par.12", w.Name(12))
}

func TestPrepareDeletesPriorRuns(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"par.1", "par.2", "results"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, d, "f.txt"), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "par.txt"), []byte("x"), 0644))

	w, err := NewWorkdirs(root, "par", KeepDelete)
	require.NoError(t, err)
	deleted, err := w.Prepare()
	require.NoError(t, err)
	sort.Strings(deleted)
	assert.Equal(t, []string{filepath.Join(root, "par.1"), filepath.Join(root, "par.2")}, deleted)

	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"results", "par.txt"}, names)
}

func TestPrepareCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tests", "calib")
	w, err := NewWorkdirs(root, "par", KeepDelete)
	require.NoError(t, err)
	_, err = w.Prepare()
	require.NoError(t, err)
	fi, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestReuseEmptiesDirectory(t *testing.T) {
	root := t.TempDir()
	prior := filepath.Join(root, "par.1")
	require.NoError(t, os.MkdirAll(filepath.Join(prior, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(prior, "StateTL_out_calday.csv"), []byte("old"), 0644))

	w, err := NewWorkdirs(root, "par", KeepReuse)
	require.NoError(t, err)
	deleted, err := w.Prepare()
	require.NoError(t, err)
	assert.Empty(t, deleted)
	_, err = os.Stat(prior)
	require.NoError(t, err, "reuse keeps prior directories until acquired")

	dir, err := w.Acquire("par.1")
	require.NoError(t, err)
	assert.Equal(t, prior, dir)
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestAcquireExclusive(t *testing.T) {
	w, err := NewWorkdirs(t.TempDir(), "par", KeepDelete)
	require.NoError(t, err)

	_, err = w.Acquire("par.1")
	require.NoError(t, err)
	_, err = w.Acquire("par.1")
	assert.True(t, errors.Is(err, ErrWorkdirInUse))

	_, err = w.Acquire("par.2")
	require.NoError(t, err)

	w.Release("par.1")
	_, err = w.Acquire("par.1")
	assert.NoError(t, err)
}
