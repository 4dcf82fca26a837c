package tlcal

import "github.com/porterma/tlcal/opt"

// ParameterRecord is one row of the parameter table.
type ParameterRecord struct {
	Symbol   string  // placeholder token, unique across samples
	Column   string  // model input column the parameter controls
	District string  // water district (row group of the model input)
	Reach    int     // reach within the district, AllReaches for every reach
	Value    float64 // initial/fixed value
	Minimum  float64
	Maximum  float64
	Vary     bool
}

// AllReachesRule reports whether the record applies to every reach of its district.
func (p ParameterRecord) AllReachesRule() bool { return p.Reach == AllReaches }

func (p ParameterRecord) sameSetting(q ParameterRecord) bool {
	return p.Value == q.Value && p.Minimum == q.Minimum && p.Maximum == q.Maximum && p.Vary == q.Vary
}

// ParameterSet is the distinct symbols of a parameter table, in first-seen order.
type ParameterSet struct {
	Records []ParameterRecord // unchanged table rows
	symbols []string
	bySym   map[string]ParameterRecord
}

func newParameterSet(recs []ParameterRecord) (*ParameterSet, error) {
	if len(recs) == 0 {
		return nil, ErrNoParameters
	}
	ps := &ParameterSet{Records: recs, bySym: make(map[string]ParameterRecord, len(recs))}
	for _, r := range recs {
		if p, ok := ps.bySym[r.Symbol]; ok {
			if !p.sameSetting(r) {
				return nil, &parameterError{r.Symbol, ErrDuplicateSymbol}
			}
			continue
		}
		ps.bySym[r.Symbol] = r
		ps.symbols = append(ps.symbols, r.Symbol)
	}
	return ps, nil
}

// Len returns the number of distinct symbols.
func (ps *ParameterSet) Len() int { return len(ps.symbols) }

// Symbols returns the distinct symbols in table order.
func (ps *ParameterSet) Symbols() []string { return append([]string(nil), ps.symbols...) }

// Lookup returns the record defining sym.
func (ps *ParameterSet) Lookup(sym string) (ParameterRecord, bool) {
	r, ok := ps.bySym[sym]
	return r, ok
}

// Varying returns the symbols the sampler may vary.
func (ps *ParameterSet) Varying() []string {
	var v []string
	for _, s := range ps.symbols {
		if ps.bySym[s].Vary {
			v = append(v, s)
		}
	}
	return v
}

// Initial returns the sample vector holding every parameter at its table value.
func (ps *ParameterSet) Initial() SampleVector {
	v := make(SampleVector, len(ps.symbols))
	for _, s := range ps.symbols {
		v[s] = ps.bySym[s].Value
	}
	return v
}

// Space converts the set into the sampler's parameter space. Symbols named
// in logScale are sampled in log space.
func (ps *ParameterSet) Space(logScale ...string) opt.Space {
	lg := make(map[string]bool, len(logScale))
	for _, s := range logScale {
		lg[s] = true
	}
	sp := make(opt.Space, len(ps.symbols))
	for i, s := range ps.symbols {
		r := ps.bySym[s]
		sp[i] = opt.Dim{Symbol: s, Value: r.Value, Min: r.Minimum, Max: r.Maximum, Vary: r.Vary, Log: lg[s]}
	}
	return sp
}

type parameterError struct {
	symbol string
	err    error
}

func (e *parameterError) Error() string { return "parameter " + e.symbol + ": " + e.err.Error() }
func (e *parameterError) Unwrap() error { return e.err }
