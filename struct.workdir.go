package tlcal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maseology/mmio"
)

// KeepPrevious policies for run directories left by an earlier study.
const (
	KeepDelete = "delete" // purge prior run directories before starting
	KeepReuse  = "reuse"  // keep them, emptying each one before it is reused
)

// Workdirs hands out one working directory per run under Root, named
// "<Base>.<n>" after the run's running count. A directory is owned by at
// most one in-flight run.
type Workdirs struct {
	Root  string
	Base  string // default "par"
	Reuse bool

	mu    sync.Mutex
	inuse map[string]bool
}

func NewWorkdirs(root, base, keepPrevious string) (*Workdirs, error) {
	if base == "" {
		base = "par"
	}
	switch keepPrevious {
	case KeepDelete, KeepReuse:
	default:
		return nil, fmt.Errorf("keep_previous must be %q or %q, got %q", KeepDelete, KeepReuse, keepPrevious)
	}
	return &Workdirs{Root: root, Base: base, Reuse: keepPrevious == KeepReuse, inuse: make(map[string]bool)}, nil
}

// Name returns the run id (and directory name) of the n-th run.
func (w *Workdirs) Name(n int64) string { return fmt.Sprintf("%s.%d", w.Base, n) }

// Prepare creates Root and, unless reusing, removes every prior run
// directory. It must be called before the first run is dispatched.
func (w *Workdirs) Prepare() ([]string, error) {
	mmio.MakeDir(w.Root)
	if !mmio.DirExists(w.Root) {
		return nil, fmt.Errorf("Workdirs.Prepare: cannot create %s", w.Root)
	}
	if w.Reuse {
		return nil, nil
	}
	ents, err := os.ReadDir(w.Root)
	if err != nil {
		return nil, fmt.Errorf("Workdirs.Prepare: %w", err)
	}
	var deleted []string
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), w.Base+".") {
			continue
		}
		fp := filepath.Join(w.Root, e.Name())
		if err := os.RemoveAll(fp); err != nil {
			return deleted, fmt.Errorf("Workdirs.Prepare: %w", err)
		}
		deleted = append(deleted, fp)
	}
	return deleted, nil
}

// Acquire returns an empty directory for run id, owned by the caller until
// Release. Reused directories are emptied so that the only file present
// before the model runs is the materialized input.
func (w *Workdirs) Acquire(id string) (string, error) {
	w.mu.Lock()
	if w.inuse == nil {
		w.inuse = make(map[string]bool)
	}
	if w.inuse[id] {
		w.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrWorkdirInUse, id)
	}
	w.inuse[id] = true
	w.mu.Unlock()

	dir := filepath.Join(w.Root, id)
	if err := emptyDir(dir); err != nil {
		w.Release(id)
		return "", fmt.Errorf("Workdirs.Acquire %s: %w", id, err)
	}
	return dir, nil
}

// Release returns the directory of run id.
func (w *Workdirs) Release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inuse, id)
}

func emptyDir(dir string) error {
	ents, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dir, 0755)
	case err != nil:
		return err
	}
	for _, e := range ents {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
