package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned for operations on a name with no entry.
	ErrNotLoaded = errors.New("automaton not loaded")

	// ErrAlreadyLoaded is returned when loading a name that already has an entry.
	ErrAlreadyLoaded = errors.New("automaton already loaded")

	// ErrUnloadedDuringSetup is returned by Load when the entry was shut down
	// or killed while its setup was still running.
	ErrUnloadedDuringSetup = errors.New("automaton unloaded during setup")

	// ErrBusy is returned when another lifecycle operation on the same
	// entry has not finished yet.
	ErrBusy = errors.New("automaton busy")
)

// Load phases reported by ExecutionError.
const (
	PhaseExecute = "execute"
	PhaseSetup   = "setup"
)

// ExecutionError reports that an automaton's code body did not produce an
// instance, or that the instance's setup failed.
type ExecutionError struct {
	Name  string
	Phase string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("automaton %s: %s failed: %v", e.Name, e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// OperationError reports a failed shutdown, kill or restart.
type OperationError struct {
	Op   string
	Name string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
