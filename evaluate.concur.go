package tlcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// run outcome labels reported to the Observer
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"  // model ran, output could not be scored
	StatusError   = "error"   // sample could not be materialized or the model not started
	StatusTimeout = "timeout" // model killed after Runner.Timeout
)

// Observer receives run lifecycle events, e.g. for metrics.
type Observer interface {
	RunStarted()
	RunFinished(status string, d time.Duration, score float64)
}

// StudyConfig names the collaborators and settings of a study.
type StudyConfig struct {
	Params    *ParameterSet
	Template  *Template
	Dirs      *Workdirs
	Runner    *Runner
	Objective *Objective
	InputFile string // materialized model input, written into each run directory
	Workers   int
	Logger    *slog.Logger
	Observer  Observer
	LogScale  []string // symbols sampled in log space
}

// Study binds sample vectors to model evaluations and aggregates their
// results. Evaluate is safe for concurrent use; at most Workers runs are in
// flight at any time.
type Study struct {
	StudyConfig

	sem   *semaphore.Weighted
	seq   atomic.Int64
	res   *ResultsTable
	mu    sync.Mutex
	smpls map[string]SampleVector
}

// NewStudy checks that every template symbol is defined by the parameter
// set and returns a ready study.
func NewStudy(c StudyConfig) (*Study, error) {
	if c.Params == nil || c.Template == nil || c.Dirs == nil || c.Runner == nil || c.Objective == nil {
		return nil, errors.New("NewStudy: parameters, template, workdirs, runner and objective are required")
	}
	if c.InputFile == "" {
		return nil, errors.New("NewStudy: input file name is required")
	}
	for _, sym := range c.Template.Symbols() {
		if _, ok := c.Params.Lookup(sym); !ok {
			return nil, fmt.Errorf("NewStudy: %w", &MissingSymbolError{Symbol: sym})
		}
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Objective.Logger == nil {
		c.Objective.Logger = c.Logger
	}
	return &Study{
		StudyConfig: c,
		sem:         semaphore.NewWeighted(int64(c.Workers)),
		res:         NewResultsTable(),
		smpls:       make(map[string]SampleVector),
	}, nil
}

// Results returns the aggregated results table.
func (s *Study) Results() *ResultsTable { return s.res }

// Sample returns the vector evaluated by run id.
func (s *Study) Sample(id string) (SampleVector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.smpls[id]
	return v, ok
}

// Evaluate runs one sample end-to-end (materialize, run the model, score)
// and records the result. Per-sample failures are returned inside the
// RunResult, never as a panic or error.
func (s *Study) Evaluate(ctx context.Context, v SampleVector) RunResult {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return RunResult{Err: err}
	}
	defer s.sem.Release(1)

	n := s.seq.Add(1)
	id := s.Dirs.Name(n)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tlcal.run")
	span.SetAttributes(attribute.String("run", id))
	defer span.End()

	if s.Observer != nil {
		s.Observer.RunStarted()
	}
	tb := time.Now()
	res, status := s.evaluate(ctx, id, v)
	res.Seq = n
	if s.Observer != nil {
		s.Observer.RunFinished(status, time.Since(tb), res.Score())
	}

	s.mu.Lock()
	s.smpls[id] = copyVector(v)
	s.mu.Unlock()
	s.res.Add(res)

	span.SetAttributes(attribute.String("status", status), attribute.Int("exit", res.ExitCode))
	if res.Failed() {
		span.SetStatus(codes.Error, res.Err.Error())
		s.Logger.Warn("run failed", "run", id, "status", status, "exit", res.ExitCode, "err", res.Err.Error())
	} else {
		s.Logger.Info("run complete", "run", id, "exit", res.ExitCode, "score", res.Score(), "elapsed", time.Since(tb).Round(time.Millisecond))
	}
	return res
}

func (s *Study) evaluate(ctx context.Context, id string, v SampleVector) (RunResult, string) {
	dir, err := s.Dirs.Acquire(id)
	if err != nil {
		return RunResult{RunID: id, ExitCode: -1, Err: err}, StatusError
	}
	defer s.Dirs.Release(id)
	fail := func(err error, status string) (RunResult, string) {
		return RunResult{RunID: id, Dir: dir, ExitCode: -1, Err: err}, status
	}

	// materialize strictly precedes run, which strictly precedes evaluate
	if err := s.Template.Materialize(v, filepath.Join(dir, s.InputFile)); err != nil {
		return fail(err, StatusError)
	}

	s.Logger.Debug("running model", "run", id, "dir", dir)
	exit, err := s.Runner.Run(ctx, dir)
	if perr := writeParams(dir, id, s.Params.Symbols(), v); perr != nil {
		s.Logger.Debug("params.txt not written", "run", id, "err", perr)
	}
	if err != nil {
		var merr *ModelExecutionError
		if errors.As(err, &merr) && merr.TimedOut {
			return fail(err, StatusTimeout)
		}
		return fail(err, StatusError)
	}

	res := s.Objective.Evaluate(dir, id)
	res.ExitCode = exit
	if res.Failed() {
		return res, StatusFailed
	}
	return res, StatusOK
}

// RunBatch evaluates every vector across the worker pool. done, if not nil,
// is called after each run. Only cancellation of ctx is returned as an
// error; failed runs are recorded in the results table.
func (s *Study) RunBatch(ctx context.Context, vs []SampleVector, done func(RunResult)) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tlcal.batch")
	span.SetAttributes(attribute.Int("samples", len(vs)))
	defer span.End()

	var dmu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for _, v := range vs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := s.Evaluate(gctx, v)
			if done != nil {
				dmu.Lock()
				done(r)
				dmu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// Save writes the results table and the sample listing.
func (s *Study) Save(resultsFP, samplesFP string) error {
	if err := WriteResults(resultsFP, s.res); err != nil {
		return err
	}
	if samplesFP == "" {
		return nil
	}
	s.mu.Lock()
	smpls := make(map[string]SampleVector, len(s.smpls))
	for k, v := range s.smpls {
		smpls[k] = v
	}
	s.mu.Unlock()
	return writeSamples(samplesFP, s.Params.Symbols(), s.res.Runs(), smpls)
}

func copyVector(v SampleVector) SampleVector {
	c := make(SampleVector, len(v))
	for k, x := range v {
		c[k] = x
	}
	return c
}

const tracerName = "github.com/porterma/tlcal"
