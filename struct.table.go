package tlcal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// table is a header-addressed, string-valued csv table. Cells are trimmed
// of surrounding whitespace on read and quoted by csv rules on write; their
// values are otherwise carried through unchanged.
type table struct {
	head []string
	rows [][]string
	col  map[string]int // lower-cased header -> index
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &table{col: make(map[string]int)}
	for _, rec := range recs {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if isBlank(rec) {
			continue
		}
		if t.head == nil {
			t.head = rec
			continue
		}
		t.rows = append(t.rows, rec)
	}
	if t.head == nil {
		return nil, fmt.Errorf("table has no header")
	}
	for i, h := range t.head {
		t.col[strings.ToLower(h)] = i
	}
	return t, nil
}

func loadTable(fp string) (*table, error) {
	f, err := os.Open(fp)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fp, err)
	}
	return t, nil
}

// index returns the column index of the first matching name (case-insensitive).
func (t *table) index(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := t.col[strings.ToLower(n)]; ok {
			return i, true
		}
	}
	return -1, false
}

func (t *table) cell(row, col int) string {
	if col < len(t.rows[row]) {
		return t.rows[row][col]
	}
	return ""
}

func (t *table) set(row, col int, v string) {
	for len(t.rows[row]) <= col {
		t.rows[row] = append(t.rows[row], "")
	}
	t.rows[row][col] = v
}

func (t *table) copy() *table {
	c := &table{
		head: append([]string(nil), t.head...),
		rows: make([][]string, len(t.rows)),
		col:  make(map[string]int, len(t.col)),
	}
	for i, r := range t.rows {
		c.rows[i] = append([]string(nil), r...)
	}
	for k, v := range t.col {
		c.col[k] = v
	}
	return c
}

// write serializes the table with a "\n" line terminator on every platform.
func (t *table) write(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false
	if err := cw.Write(t.head); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return err
	}
	return cw.Error()
}

func isBlank(rec []string) bool {
	for _, s := range rec {
		if s != "" {
			return false
		}
	}
	return true
}

// sameKey compares two table keys numerically when both parse as numbers
// ("1" == "1.0"), otherwise as text.
func sameKey(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	fa, erra := strconv.ParseFloat(a, 64)
	fb, errb := strconv.ParseFloat(b, 64)
	if erra == nil && errb == nil {
		return fa == fb
	}
	return a == b
}

// lessKey orders keys numerically when both are numbers, numbers before text.
func lessKey(a, b string) bool {
	fa, erra := strconv.ParseFloat(a, 64)
	fb, errb := strconv.ParseFloat(b, 64)
	switch {
	case erra == nil && errb == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case erra == nil:
		return true
	case errb == nil:
		return false
	}
	return a < b
}
