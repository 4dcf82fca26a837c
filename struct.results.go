package tlcal

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"sync"
)

// AllEntities labels the single results row written when no run produced
// any entity.
const AllEntities = "*"

// RunResult is the outcome of one model evaluation. It is never modified
// after it is recorded.
type RunResult struct {
	RunID    string
	Seq      int64 // running count the id was derived from
	Dir      string
	ExitCode int
	RMSE     map[string]float64 // entity id -> RMSE, nil when failed
	Err      error              // reason the run could not be scored
}

// Failed reports whether the run produced no usable output.
func (r RunResult) Failed() bool { return r.Err != nil }

// Get returns the RMSE of entity e, or FailedRMSE.
func (r RunResult) Get(e string) float64 {
	if r.Failed() {
		return FailedRMSE
	}
	if v, ok := r.RMSE[e]; ok {
		return v
	}
	return FailedRMSE
}

// Score aggregates the run into one objective value (mean RMSE over
// entities), FailedRMSE for a failed run.
func (r RunResult) Score() float64 {
	if r.Failed() || len(r.RMSE) == 0 {
		return FailedRMSE
	}
	s := 0.
	for _, v := range r.RMSE {
		s += v
	}
	return s / float64(len(r.RMSE))
}

// ResultsTable aggregates run results keyed by run id and entity id.
// Insertion order does not matter.
type ResultsTable struct {
	mu   sync.Mutex
	runs map[string]RunResult
}

func NewResultsTable() *ResultsTable {
	return &ResultsTable{runs: make(map[string]RunResult)}
}

// Add records r, replacing any earlier result with the same run id.
func (t *ResultsTable) Add(r RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[r.RunID] = r
}

// Len returns the number of recorded runs.
func (t *ResultsTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

// Get returns the RMSE for run id and entity e.
func (t *ResultsTable) Get(id, e string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[id]
	if !ok {
		return 0., false
	}
	return r.Get(e), true
}

// Run returns the recorded result of run id.
func (t *ResultsTable) Run(id string) (RunResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[id]
	return r, ok
}

// Runs returns all results ordered by their running count.
func (t *ResultsTable) Runs() []RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs := make([]RunResult, 0, len(t.runs))
	for _, r := range t.runs {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Seq != rs[j].Seq {
			return rs[i].Seq < rs[j].Seq
		}
		return rs[i].RunID < rs[j].RunID
	})
	return rs
}

// Entities returns every entity id seen in a successful run.
func (t *ResultsTable) Entities() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := make(map[string]bool)
	for _, r := range t.runs {
		for e := range r.RMSE {
			m[e] = true
		}
	}
	es := make([]string, 0, len(m))
	for e := range m {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return lessKey(es[i], es[j]) })
	return es
}

// Best returns the successful run with the lowest score.
func (t *ResultsTable) Best() (RunResult, bool) {
	var best RunResult
	found := false
	for _, r := range t.Runs() {
		if r.Failed() {
			continue
		}
		if !found || r.Score() < best.Score() {
			best, found = r, true
		}
	}
	return best, found
}

// Write serializes the table: one row per entity, one column per run id.
// Failed runs hold FailedRMSE in every row.
func (t *ResultsTable) Write(w io.Writer) error {
	runs, ents := t.Runs(), t.Entities()
	if len(ents) == 0 {
		ents = []string{AllEntities}
	}
	cw := csv.NewWriter(w)
	hdr := make([]string, 1, len(runs)+1)
	hdr[0] = "entity"
	for _, r := range runs {
		hdr = append(hdr, r.RunID)
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	for _, e := range ents {
		rec := make([]string, 1, len(runs)+1)
		rec[0] = e
		for _, r := range runs {
			rec = append(rec, strconv.FormatFloat(r.Get(e), 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
