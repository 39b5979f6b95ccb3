// Package sequencer orders automaton definitions for loading.
//
// Definitions are first stable-sorted by ascending priority, then walked
// depth-first so that every dependency present in the set is emitted before
// its dependent. Dependencies outside the set and dependency cycles never
// fail ordering; they are reported to an Observer.
package sequencer

import (
	"sort"

	"automata/pkg/automaton"
)

// Observer receives ordering diagnostics. Implementations must be quick;
// they are called synchronously during Order.
type Observer interface {
	// MissingDependency is called when automaton depends on a name that is
	// not in the set being ordered.
	MissingDependency(automaton, dependency string)

	// CycleDetected is called once per back edge. The path starts and ends
	// with the same name, e.g. [a b a].
	CycleDetected(path []string)
}

type nopObserver struct{}

func (nopObserver) MissingDependency(string, string) {}
func (nopObserver) CycleDetected([]string) {}

// Order returns defs in load order. The result contains exactly the input
// definitions, each once. obs may be nil.
func Order(defs []automaton.Definition, obs Observer) []automaton.Definition {
	if obs == nil {
		obs = nopObserver{}
	}

	sorted := make([]automaton.Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	// First definition wins when a name repeats.
	byName := make(map[string]int, len(sorted))
	for i, d := range sorted {
		if _, ok := byName[d.Name]; !ok {
			byName[d.Name] = i
		}
	}

	s := &walk{
		defs:     sorted,
		byName:   byName,
		obs:      obs,
		entered:  make([]bool, len(sorted)),
		finished: make([]bool, len(sorted)),
		out:      make([]automaton.Definition, 0, len(sorted)),
	}
	for i := range sorted {
		s.visit(i)
	}
	return s.out
}

type walk struct {
	defs     []automaton.Definition
	byName   map[string]int
	obs      Observer
	entered  []bool
	finished []bool
	stack    []string
	out      []automaton.Definition
}

func (w *walk) visit(i int) {
	if w.entered[i] {
		if !w.finished[i] {
			w.obs.CycleDetected(w.cyclePath(w.defs[i].Name))
		}
		return
	}
	w.entered[i] = true

	d := w.defs[i]
	w.stack = append(w.stack, d.Name)
	for _, dep := range d.Dependencies {
		j, ok := w.byName[dep]
		if !ok {
			w.obs.MissingDependency(d.Name, dep)
			continue
		}
		w.visit(j)
	}
	w.stack = w.stack[:len(w.stack)-1]

	w.finished[i] = true
	w.out = append(w.out, d)
}

// cyclePath returns the stack suffix starting at name, closed with name.
func (w *walk) cyclePath(name string) []string {
	start := 0
	for k := len(w.stack) - 1; k >= 0; k-- {
		if w.stack[k] == name {
			start = k
			break
		}
	}
	path := append([]string(nil), w.stack[start:]...)
	return append(path, name)
}
