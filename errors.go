package tlcal

import (
	"errors"
	"fmt"
)

var (
	ErrNoParameters    = errors.New("parameter table holds no parameters")
	ErrDuplicateSymbol = errors.New("symbol defined more than once with different settings")
	ErrParameterBounds = errors.New("parameter value outside [minimum, maximum]")
	ErrTemplateFormat  = errors.New("malformed template")
	ErrWorkdirInUse    = errors.New("working directory already in use")
)

// SchemaError is returned by template synthesis when a parameter record
// cannot be located in the baseline model input table.
type SchemaError struct {
	Symbol, Column, District string
	Reach                    int
	Reason                   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: symbol %q (district %s, reach %d, column %q): %s", e.Symbol, e.District, e.Reach, e.Column, e.Reason)
}

// MissingSymbolError is returned when a template references a symbol that
// the sample vector does not supply.
type MissingSymbolError struct {
	Symbol string
}

func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("sample vector has no value for template symbol %q", e.Symbol)
}

// ModelExecutionError is returned when the model process could not be
// started or did not finish on its own.
type ModelExecutionError struct {
	Dir      string
	TimedOut bool
	Err      error
}

func (e *ModelExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("model run in %s timed out: %v", e.Dir, e.Err)
	}
	return fmt.Sprintf("model run in %s failed: %v", e.Dir, e.Err)
}

func (e *ModelExecutionError) Unwrap() error { return e.Err }

// ObjectiveError describes why a run's output could not be scored.
type ObjectiveError struct {
	RunID  string
	Entity string
	Err    error
}

func (e *ObjectiveError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("run %s entity %s: %v", e.RunID, e.Entity, e.Err)
	}
	return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
}

func (e *ObjectiveError) Unwrap() error { return e.Err }
