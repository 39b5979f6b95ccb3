// Package mirror keeps a read-only copy of the registry contents for
// consumers outside the registry, such as Lua code bodies.
package mirror

import (
	"sort"
	"sync"

	"automata/pkg/automaton"
)

// Namespace maps automaton names to their latest snapshot. The registry is
// the only writer.
type Namespace struct {
	mu      sync.RWMutex
	entries map[string]automaton.Snapshot
}

// NewNamespace creates an empty namespace
func NewNamespace() *Namespace {
	return &Namespace{
		entries: make(map[string]automaton.Snapshot),
	}
}

// Publish records the snapshot, replacing any previous one under the same name.
func (n *Namespace) Publish(s automaton.Snapshot) {
	s.Definition = s.Definition.Clone()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[s.Name] = s
}

// Remove drops name from the namespace.
func (n *Namespace) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, name)
}

// Get returns a copy of the snapshot stored under name.
func (n *Namespace) Get(name string) (automaton.Snapshot, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	s, ok := n.entries[name]
	if !ok {
		return automaton.Snapshot{}, false
	}
	s.Definition = s.Definition.Clone()
	return s, true
}

// Names returns every mirrored name in lexical order.
func (n *Namespace) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	names := make([]string, 0, len(n.entries))
	for name := range n.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Running reports whether name is mirrored with a completed setup.
func (n *Namespace) Running(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	s, ok := n.entries[name]
	return ok && s.Status == automaton.StatusRunning
}

// Len returns the number of mirrored entries.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entries)
}
