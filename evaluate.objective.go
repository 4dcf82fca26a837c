package tlcal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/maseology/objfunc"
)

var (
	errUnpaired   = errors.New("no matching observed/simulated pair")
	errNoEntities = errors.New("output holds no entities")
)

// Objective scores a run's output table: one RMSE per entity between its
// observed (gauge) and simulated series.
type Objective struct {
	OutputFile      string // default "StateTL_out_calday.csv"
	EntityColumn    string // default "WDID"
	KindColumn      string // default "1-Gage/2-Sim"
	MetadataColumns int    // leading non-numeric columns, default 7
	Logger          *slog.Logger
}

func (o *Objective) defaults() Objective {
	c := *o
	if c.OutputFile == "" {
		c.OutputFile = "StateTL_out_calday.csv"
	}
	if c.EntityColumn == "" {
		c.EntityColumn = "WDID"
	}
	if c.KindColumn == "" {
		c.KindColumn = "1-Gage/2-Sim"
	}
	if c.MetadataColumns <= 0 {
		c.MetadataColumns = 7
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Evaluate reads the output of run runID in workdir. It never fails: a
// missing or malformed output, or an entity without an observed/simulated
// pair, is logged and returned as a failed RunResult.
func (o *Objective) Evaluate(workdir, runID string) RunResult {
	c := o.defaults()
	res := RunResult{RunID: runID, Dir: workdir}
	rmse, err := c.score(filepath.Join(workdir, c.OutputFile))
	if err != nil {
		oerr := &ObjectiveError{RunID: runID, Err: err}
		var eerr *entityError
		if errors.As(err, &eerr) {
			oerr.Entity, oerr.Err = eerr.entity, eerr.err
		}
		c.Logger.Warn("objective evaluation failed", "run", runID, "dir", workdir, "err", oerr.Error())
		res.Err = oerr
		return res
	}
	res.RMSE = rmse
	return res
}

type entityError struct {
	entity string
	err    error
}

func (e *entityError) Error() string { return "entity " + e.entity + ": " + e.err.Error() }

func (o *Objective) score(fp string) (map[string]float64, error) {
	t, err := loadTable(fp)
	if err != nil {
		return nil, err
	}
	ecol, ok := t.index(o.EntityColumn)
	if !ok {
		return nil, fmt.Errorf("%s: no entity column %q", filepath.Base(fp), o.EntityColumn)
	}
	kcol, ok := t.index(o.KindColumn)
	if !ok {
		return nil, fmt.Errorf("%s: no discriminator column %q", filepath.Base(fp), o.KindColumn)
	}

	type pair struct{ obs, sim []string }
	pairs, order := make(map[string]*pair), []string{}
	for i, row := range t.rows {
		e := t.cell(i, ecol)
		k, err := strconv.ParseFloat(t.cell(i, kcol), 64)
		if err != nil {
			return nil, &entityError{e, fmt.Errorf("discriminator %q: %w", t.cell(i, kcol), err)}
		}
		if k != math.Trunc(k) {
			return nil, &entityError{e, fmt.Errorf("discriminator %q is not a whole number", t.cell(i, kcol))}
		}
		p, ok := pairs[e]
		if !ok {
			p = &pair{}
			pairs[e] = p
			order = append(order, e)
		}
		var ser []string
		if len(row) > o.MetadataColumns {
			ser = row[o.MetadataColumns:]
		}
		switch int(k) {
		case Observed:
			if p.obs != nil {
				return nil, &entityError{e, errors.New("more than one observed row")}
			}
			p.obs = ser
		case Simulated:
			if p.sim != nil {
				return nil, &entityError{e, errors.New("more than one simulated row")}
			}
			p.sim = ser
		default:
			return nil, &entityError{e, fmt.Errorf("unknown discriminator %v", k)}
		}
	}
	if len(order) == 0 {
		return nil, errNoEntities
	}

	rmse := make(map[string]float64, len(order))
	for _, e := range order {
		p := pairs[e]
		if p.obs == nil || p.sim == nil {
			return nil, &entityError{e, errUnpaired}
		}
		fo, fs, err := alignSeries(p.obs, p.sim)
		if err != nil {
			return nil, &entityError{e, err}
		}
		rmse[e] = objfunc.RMSE(fo, fs)
	}
	return rmse, nil
}

// alignSeries parses both series, dropping time steps where either value is
// missing.
func alignSeries(obs, sim []string) ([]float64, []float64, error) {
	if len(obs) != len(sim) {
		return nil, nil, fmt.Errorf("series lengths differ (observed %d, simulated %d)", len(obs), len(sim))
	}
	o, s := make([]float64, 0, len(obs)), make([]float64, 0, len(sim))
	for i := range obs {
		vo, oko, err := parseCell(obs[i])
		if err != nil {
			return nil, nil, err
		}
		vs, oks, err := parseCell(sim[i])
		if err != nil {
			return nil, nil, err
		}
		if oko && oks {
			o = append(o, vo)
			s = append(s, vs)
		}
	}
	if len(o) == 0 {
		return nil, nil, errUnpaired
	}
	return o, s, nil
}

// parseCell returns false for an empty or NaN cell.
func parseCell(c string) (float64, bool, error) {
	if c == "" {
		return 0., false, nil
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0., false, fmt.Errorf("non-numeric value %q", c)
	}
	if math.IsNaN(v) {
		return 0., false, nil
	}
	return v, true, nil
}
