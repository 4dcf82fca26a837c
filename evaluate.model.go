package tlcal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultModelArgs reproduces the StateTL command line "-f <run folder> -c".
var DefaultModelArgs = []string{"-f", "{workdir_rel}", "-c"}

const modelLog = "model.log"

// Runner invokes the external model. The executable resolves its inputs
// relative to its own installation directory, so the child process is
// started with ModelDir as its working directory; the invoking process's
// cwd is never changed.
type Runner struct {
	ModelDir string        // model installation directory
	Exe      string        // executable, relative to ModelDir unless absolute
	Args     []string      // {run}, {workdir} and {workdir_rel} are expanded per run
	Timeout  time.Duration // 0: wait indefinitely
}

// Run executes the model for the run in workdir and waits for it to exit.
// A non-zero exit code is reported, not returned as an error: whether the
// run succeeded is decided by the objective evaluator.
func (r *Runner) Run(ctx context.Context, workdir string) (int, error) {
	wd, err := filepath.Abs(workdir)
	if err != nil {
		return -1, &ModelExecutionError{Dir: workdir, Err: err}
	}
	mdir, err := filepath.Abs(r.ModelDir)
	if err != nil {
		return -1, &ModelExecutionError{Dir: workdir, Err: err}
	}
	exe := r.Exe
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(mdir, exe)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	// the run directory holds only the materialized input while the model
	// runs; its console output is saved once it exits
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, r.expand(mdir, wd)...)
	cmd.Dir = mdir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = 5 * time.Second

	err = cmd.Run()
	lerr := os.WriteFile(filepath.Join(wd, modelLog), out.Bytes(), 0644)
	if ctx.Err() != nil {
		return -1, &ModelExecutionError{Dir: workdir, TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
	}
	if err != nil {
		var xerr *exec.ExitError
		if errors.As(err, &xerr) {
			return xerr.ExitCode(), nil
		}
		return -1, &ModelExecutionError{Dir: workdir, Err: err}
	}
	if lerr != nil {
		return -1, &ModelExecutionError{Dir: workdir, Err: lerr}
	}
	return 0, nil
}

func (r *Runner) expand(mdir, wd string) []string {
	args := r.Args
	if args == nil {
		args = DefaultModelArgs
	}
	rel, err := filepath.Rel(mdir, wd)
	if err != nil {
		rel = wd
	}
	rpl := strings.NewReplacer(
		"{run}", filepath.Base(wd),
		"{workdir}", wd,
		"{workdir_rel}", rel,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = rpl.Replace(a)
	}
	return out
}
