package tlcal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

const templateMarker = "ptf"

// SampleVector assigns a value to every symbol of one model evaluation.
type SampleVector map[string]float64

// Template is a parsed template file. It is read-only once loaded and can be
// shared by concurrent workers.
type Template struct {
	Delimiter rune
	segs      []segment
	symbols   []string
}

type segment struct {
	text   string // literal text, or
	symbol string // a placeholder when non-empty
}

// LoadTemplate reads and parses a template file.
func LoadTemplate(fp string) (*Template, error) {
	b, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("LoadTemplate: %w", err)
	}
	t, err := ParseTemplate(string(b))
	if err != nil {
		return nil, fmt.Errorf("LoadTemplate %s: %w", fp, err)
	}
	return t, nil
}

// ParseTemplate parses template text: a "ptf <delim>" header line followed by
// the body. Placeholders may be padded with spaces inside the delimiters.
func ParseTemplate(s string) (*Template, error) {
	hdr, body, ok := strings.Cut(s, "\n")
	if !ok {
		return nil, fmt.Errorf("%w: no header line", ErrTemplateFormat)
	}
	hdr = strings.TrimSpace(strings.TrimSuffix(hdr, "\r"))
	f := strings.Fields(hdr)
	if len(f) != 2 || !strings.EqualFold(f[0], templateMarker) || utf8.RuneCountInString(f[1]) != 1 {
		return nil, fmt.Errorf("%w: header %q, want \"%s <delimiter>\"", ErrTemplateFormat, hdr, templateMarker)
	}
	delim, _ := utf8.DecodeRuneInString(f[1])

	t := &Template{Delimiter: delim}
	seen := make(map[string]bool)
	d := string(delim)
	for len(body) > 0 {
		i := strings.Index(body, d)
		if i < 0 {
			t.segs = append(t.segs, segment{text: body})
			break
		}
		if i > 0 {
			t.segs = append(t.segs, segment{text: body[:i]})
		}
		body = body[i+len(d):]
		j := strings.Index(body, d)
		if j < 0 {
			return nil, fmt.Errorf("%w: unterminated placeholder", ErrTemplateFormat)
		}
		sym := strings.TrimSpace(body[:j])
		if sym == "" || strings.ContainsAny(sym, "\n,") {
			return nil, fmt.Errorf("%w: invalid placeholder %q", ErrTemplateFormat, body[:j])
		}
		t.segs = append(t.segs, segment{symbol: sym})
		if !seen[sym] {
			seen[sym] = true
			t.symbols = append(t.symbols, sym)
		}
		body = body[j+len(d):]
	}
	return t, nil
}

// Symbols returns the distinct symbols referenced, in order of appearance.
func (t *Template) Symbols() []string { return append([]string(nil), t.symbols...) }

// Render substitutes every placeholder with its value from v.
func (t *Template) Render(v SampleVector) (string, error) {
	var sb strings.Builder
	for _, s := range t.segs {
		if s.symbol == "" {
			sb.WriteString(s.text)
			continue
		}
		x, ok := v[s.symbol]
		if !ok {
			return "", &MissingSymbolError{Symbol: s.symbol}
		}
		sb.WriteString(FormatValue(x))
	}
	return sb.String(), nil
}

// Materialize renders v and writes it to dst, replacing any prior content.
// No other file is touched.
func (t *Template) Materialize(v SampleVector, dst string) error {
	s, err := t.Render(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, []byte(s), 0644); err != nil {
		return fmt.Errorf("Materialize: %w", err)
	}
	return nil
}

// Materialize renders the template file tplFP with v into dst.
func Materialize(tplFP string, v SampleVector, dst string) error {
	t, err := LoadTemplate(tplFP)
	if err != nil {
		return err
	}
	return t.Materialize(v, dst)
}

// FormatValue writes x with the fewest digits that parse back to exactly x.
func FormatValue(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
