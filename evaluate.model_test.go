package tlcal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel writes an executable shell script named StateTL into a fresh
// model directory.
func fakeModel(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake model is a shell script")
	}
	mdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mdir, "StateTL"), []byte("#!/bin/sh\n"+script), 0755))
	return mdir
}

func realPath(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}

func TestRunnerWorkingDirectory(t *testing.T) {
	mdir := fakeModel(t, `pwd -P > "$2/pwd.txt"
echo "$@" > "$2/args.txt"
echo running
`)
	wd := filepath.Join(t.TempDir(), "par.1")
	require.NoError(t, os.Mkdir(wd, 0755))
	cwd, err := os.Getwd()
	require.NoError(t, err)

	r := &Runner{ModelDir: mdir, Exe: "StateTL"}
	code, err := r.Run(context.Background(), wd)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, after)

	b, err := os.ReadFile(filepath.Join(wd, "pwd.txt"))
	require.NoError(t, err)
	assert.Equal(t, realPath(t, mdir), realPath(t, strings.TrimSpace(string(b))))

	b, err = os.ReadFile(filepath.Join(wd, "args.txt"))
	require.NoError(t, err)
	args := strings.Fields(string(b))
	require.Len(t, args, 3)
	assert.Equal(t, "-f", args[0])
	assert.False(t, filepath.IsAbs(args[1]))
	assert.Equal(t, "-c", args[2])

	b, err = os.ReadFile(filepath.Join(wd, modelLog))
	require.NoError(t, err)
	assert.Equal(t, "running\n", string(b))
}

func TestRunnerArgs(t *testing.T) {
	mdir := fakeModel(t, `echo "$@" > "$2/args.txt"`)
	wd := filepath.Join(t.TempDir(), "par.3")
	require.NoError(t, os.Mkdir(wd, 0755))

	r := &Runner{ModelDir: mdir, Exe: "StateTL", Args: []string{"--dir", "{workdir}", "--id", "{run}"}}
	_, err := r.Run(context.Background(), wd)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(wd, "args.txt"))
	require.NoError(t, err)
	abs, err := filepath.Abs(wd)
	require.NoError(t, err)
	assert.Equal(t, "--dir "+abs+" --id par.3\n", string(b))
}

func TestRunnerNonZeroExit(t *testing.T) {
	mdir := fakeModel(t, "exit 3\n")
	r := &Runner{ModelDir: mdir, Exe: "StateTL"}
	code, err := r.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunnerMissingExecutable(t *testing.T) {
	r := &Runner{ModelDir: t.TempDir(), Exe: "StateTL.exe"}
	_, err := r.Run(context.Background(), t.TempDir())
	var merr *ModelExecutionError
	require.True(t, errors.As(err, &merr))
	assert.False(t, merr.TimedOut)
}

func TestRunnerTimeout(t *testing.T) {
	mdir := fakeModel(t, "exec sleep 10\n")
	r := &Runner{ModelDir: mdir, Exe: "StateTL", Timeout: 200 * time.Millisecond}
	tb := time.Now()
	_, err := r.Run(context.Background(), t.TempDir())
	var merr *ModelExecutionError
	require.True(t, errors.As(err, &merr))
	assert.True(t, merr.TimedOut)
	assert.Less(t, time.Since(tb), 5*time.Second)
}

func TestRunnerCancelled(t *testing.T) {
	mdir := fakeModel(t, "exec sleep 10\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{ModelDir: mdir, Exe: "StateTL"}
	_, err := r.Run(ctx, t.TempDir())
	var merr *ModelExecutionError
	require.True(t, errors.As(err, &merr))
	assert.False(t, merr.TimedOut)
	assert.True(t, errors.Is(err, context.Canceled))
}
