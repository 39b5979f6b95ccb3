// Package automaton provides the data model shared by the automaton host:
// the declared definition of an automaton as parsed from a package manifest,
// the running instance capabilities produced by an execution environment,
// and the snapshots the registry hands out to observers.
package automaton

// DefaultPriority is used when a manifest omits priority or gives a
// non-numeric value. Lower priorities load earlier.
const DefaultPriority = 100

// Package is one parsed package source: package-level metadata plus the
// automaton blocks in source order.
type Package struct {
	// Name is set by an "atpk-name:" line. Empty when absent.
	Name string `json:"name,omitempty"`

	// Description is set by an "atpk-description:" line. Empty when absent.
	Description string `json:"description,omitempty"`

	// Automata holds every automaton block in the order it appeared.
	Automata []Definition `json:"automata"`
}

// Definition is the declared, not-yet-running description of one automaton.
type Definition struct {
	// Name uniquely identifies the automaton within a package and within
	// the registry.
	Name string `json:"name"`

	// Version is free-form and is not assumed to be semver.
	Version string `json:"version"`

	Description string `json:"description"`
	Author      string `json:"author,omitempty"`

	// Priority is a load-order hint; lower values load earlier.
	Priority int `json:"priority"`

	// RespondsTo lists event names the automaton listens for. Informational.
	RespondsTo []string `json:"respondsto"`

	// Controls lists resource identifiers the automaton claims ownership of.
	// Two running automata claiming the same tag are reported as a conflict.
	Controls []string `json:"controls"`

	// Dependencies names automata that must be loaded before this one.
	Dependencies []string `json:"dependencies"`

	// Code is the raw executable body handed to the execution environment.
	Code string `json:"-"`
}

// Clone returns a copy of d whose slices do not alias d's.
func (d Definition) Clone() Definition {
	c := d
	c.RespondsTo = cloneStrings(d.RespondsTo)
	c.Controls = cloneStrings(d.Controls)
	c.Dependencies = cloneStrings(d.Dependencies)
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
