package tlcal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// TemplateOptions names the baseline columns used to locate rows and the
// placeholder delimiter. The parameter table's district and reach headers
// are accepted as fallbacks.
type TemplateOptions struct {
	DistrictColumn string // default "WD"
	ReachColumn    string // default "Reach"
	Delimiter      rune   // default '~'
}

func (o TemplateOptions) withDefaults() TemplateOptions {
	if o.DistrictColumn == "" {
		o.DistrictColumn = colDistrict[0]
	}
	if o.ReachColumn == "" {
		o.ReachColumn = colReach[0]
	}
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	return o
}

// Placeholder returns the template token for sym.
func Placeholder(sym string, delim rune) string {
	d := string(delim)
	return d + sym + d
}

// BuildTemplate copies the baseline model input table, replaces every cell
// controlled by a parameter record with its placeholder and writes the
// template file. It is a one-time setup step. The records are returned
// unchanged along with the number of distinct symbols.
func BuildTemplate(ps *ParameterSet, baselineFP, templateFP string, o TemplateOptions) ([]ParameterRecord, int, error) {
	base, err := loadTable(baselineFP)
	if err != nil {
		return nil, 0, fmt.Errorf("BuildTemplate: %w", err)
	}
	o = o.withDefaults()
	tpl, err := synthesize(ps.Records, base, o)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Create(templateFP)
	if err != nil {
		return nil, 0, fmt.Errorf("BuildTemplate: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := writeTemplate(w, tpl, o.Delimiter); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("BuildTemplate %s: %w", templateFP, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("BuildTemplate %s: %w", templateFP, err)
	}
	if err := f.Close(); err != nil {
		return nil, 0, fmt.Errorf("BuildTemplate %s: %w", templateFP, err)
	}
	return ps.Records, ps.Len(), nil
}

// synthesize applies all-reach records first, then reach-specific records, so
// a specific reach always overrides its district-wide rule whatever the order
// of the parameter table.
func synthesize(recs []ParameterRecord, base *table, o TemplateOptions) (*table, error) {
	dcol, ok := base.index(append([]string{o.DistrictColumn}, colDistrict...)...)
	if !ok {
		return nil, &SchemaError{Reason: fmt.Sprintf("baseline has no district column %q", o.DistrictColumn)}
	}
	rcol, ok := base.index(append([]string{o.ReachColumn}, colReach...)...)
	if !ok {
		return nil, &SchemaError{Reason: fmt.Sprintf("baseline has no reach column %q", o.ReachColumn)}
	}

	tpl := base.copy()
	placed := make(map[[2]int]bool)
	apply := func(p ParameterRecord) error {
		pcol, ok := tpl.index(p.Column)
		if !ok {
			return &SchemaError{p.Symbol, p.Column, p.District, p.Reach, "baseline has no such column"}
		}
		n := 0
		for i := range tpl.rows {
			if !sameKey(tpl.cell(i, dcol), p.District) {
				continue
			}
			if !p.AllReachesRule() && !sameKey(tpl.cell(i, rcol), strconv.Itoa(p.Reach)) {
				continue
			}
			tpl.set(i, pcol, Placeholder(p.Symbol, o.Delimiter))
			placed[[2]int{i, pcol}] = true
			n++
		}
		if n == 0 {
			return &SchemaError{p.Symbol, p.Column, p.District, p.Reach, "no matching row in baseline"}
		}
		return nil
	}

	for _, p := range recs { // pass 1: district-wide
		if p.AllReachesRule() {
			if err := apply(p); err != nil {
				return nil, err
			}
		}
	}
	for _, p := range recs { // pass 2: specific reach
		if !p.AllReachesRule() {
			if err := apply(p); err != nil {
				return nil, err
			}
		}
	}
	if err := checkLiterals(tpl, placed, dcol, o.Delimiter); err != nil {
		return nil, err
	}
	return tpl, nil
}

// checkLiterals rejects a template whose literal text contains the
// placeholder delimiter; it could not be parsed back.
func checkLiterals(t *table, placed map[[2]int]bool, dcol int, delim rune) error {
	for _, h := range t.head {
		if strings.ContainsRune(h, delim) {
			return &SchemaError{Column: h, Reason: fmt.Sprintf("header contains the placeholder delimiter %q", delim)}
		}
	}
	for i, row := range t.rows {
		for j, c := range row {
			if placed[[2]int{i, j}] || !strings.ContainsRune(c, delim) {
				continue
			}
			col := ""
			if j < len(t.head) {
				col = t.head[j]
			}
			return &SchemaError{Column: col, District: t.cell(i, dcol), Reason: fmt.Sprintf("baseline row %d cell %q contains the placeholder delimiter %q", i+1, c, delim)}
		}
	}
	return nil
}

func writeTemplate(w io.Writer, t *table, delim rune) error {
	if _, err := fmt.Fprintf(w, "%s %c\n", templateMarker, delim); err != nil {
		return err
	}
	return t.write(w)
}
