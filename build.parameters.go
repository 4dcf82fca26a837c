package tlcal

import (
	"fmt"
	"io"
	"math"
	"strconv"
)

// parameter table column names and their accepted aliases
var (
	colDistrict = []string{"WD", "waterDistrict"}
	colReach    = []string{"Reach"}
	colColumn   = []string{"parameter", "parameterColumn"}
	colSymbol   = []string{"symbol"}
	colValue    = []string{"value"}
	colMin      = []string{"minimum", "min"}
	colMax      = []string{"maximum", "max"}
	colVary     = []string{"vary"}
)

// LoadParameters reads the calibration parameter table.
func LoadParameters(fp string) (*ParameterSet, error) {
	t, err := loadTable(fp)
	if err != nil {
		return nil, fmt.Errorf("LoadParameters: %w", err)
	}
	ps, err := parseParameters(t)
	if err != nil {
		return nil, fmt.Errorf("LoadParameters %s: %w", fp, err)
	}
	return ps, nil
}

// ReadParameters parses a parameter table from r. Whitespace around
// delimiters is ignored and blank rows are skipped.
func ReadParameters(r io.Reader) (*ParameterSet, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	return parseParameters(t)
}

func parseParameters(t *table) (*ParameterSet, error) {
	idx := make(map[string]int, 8)
	for nam, aliases := range map[string][]string{
		"district": colDistrict, "reach": colReach, "parameter": colColumn, "symbol": colSymbol,
		"value": colValue, "minimum": colMin, "maximum": colMax, "vary": colVary,
	} {
		i, ok := t.index(aliases...)
		if !ok {
			return nil, fmt.Errorf("parameter table is missing column %q", aliases[0])
		}
		idx[nam] = i
	}

	recs := make([]ParameterRecord, 0, len(t.rows))
	for k := range t.rows {
		line := k + 2 // 1-based, after header
		flt := func(nam string) (float64, error) {
			v, err := strconv.ParseFloat(t.cell(k, idx[nam]), 64)
			if err != nil {
				return 0., fmt.Errorf("line %d: %s: %w", line, nam, err)
			}
			return v, nil
		}
		var (
			p   ParameterRecord
			err error
		)
		p.District = t.cell(k, idx["district"])
		p.Column = t.cell(k, idx["parameter"])
		p.Symbol = t.cell(k, idx["symbol"])
		if p.Symbol == "" || p.Column == "" || p.District == "" {
			return nil, fmt.Errorf("line %d: symbol, parameter and district are required", line)
		}
		rch, err := flt("reach")
		if err != nil {
			return nil, err
		}
		if rch != math.Trunc(rch) {
			return nil, fmt.Errorf("line %d: reach %v is not an integer", line, rch)
		}
		p.Reach = int(rch)
		if p.Value, err = flt("value"); err != nil {
			return nil, err
		}
		if p.Minimum, err = flt("minimum"); err != nil {
			return nil, err
		}
		if p.Maximum, err = flt("maximum"); err != nil {
			return nil, err
		}
		if p.Vary, err = strconv.ParseBool(t.cell(k, idx["vary"])); err != nil {
			return nil, fmt.Errorf("line %d: vary: %w", line, err)
		}
		if p.Vary && (p.Minimum > p.Maximum || p.Value < p.Minimum || p.Value > p.Maximum) {
			return nil, &parameterError{p.Symbol, ErrParameterBounds}
		}
		recs = append(recs, p)
	}
	return newParameterSet(recs)
}
