package tlcal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maseology/mmio"
)

const paramsFile = "params.txt"

// writeParams records the sample vector of a run inside its directory.
func writeParams(dir, id string, syms []string, v SampleVector) error {
	tw, err := mmio.NewTXTwriter(filepath.Join(dir, paramsFile))
	if err != nil {
		return fmt.Errorf("writeParams: %w", err)
	}
	defer tw.Close()
	tw.WriteLine(mmio.MMtime(time.Now()))
	tw.WriteLine(id)
	for _, s := range syms {
		tw.WriteLine(fmt.Sprintf("%s\t%s", s, FormatValue(v[s])))
	}
	return nil
}

// WriteResults saves the results table to fp.
func WriteResults(fp string, t *ResultsTable) error {
	f, err := os.Create(fp)
	if err != nil {
		return fmt.Errorf("WriteResults: %w", err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("WriteResults %s: %w", fp, err)
	}
	return f.Close()
}

// writeSamples saves one line per run: id, exit code, score, then the value
// of every symbol.
func writeSamples(fp string, syms []string, runs []RunResult, smpls map[string]SampleVector) error {
	if !mmio.DirExists(filepath.Dir(fp)) {
		return fmt.Errorf("writeSamples: directory %s does not exist", filepath.Dir(fp))
	}
	csvw := mmio.NewCSVwriter(fp)
	defer csvw.Close()
	hdr := "run,exit,score"
	for _, s := range syms {
		hdr += "," + s
	}
	if err := csvw.WriteHead(hdr); err != nil {
		return fmt.Errorf("writeSamples: %w", err)
	}
	for _, r := range runs {
		ln := make([]interface{}, 0, len(syms)+3)
		ln = append(ln, r.RunID, r.ExitCode, FormatValue(r.Score()))
		v := smpls[r.RunID]
		for _, s := range syms {
			ln = append(ln, FormatValue(v[s]))
		}
		csvw.WriteLine(ln...)
	}
	return nil
}
