package automaton

import "context"

// Instance is the running form of an automaton as produced by an Executor.
//
// Both capabilities are optional. A nil Setup means the automaton needs no
// initialisation; a nil Teardown means shutdown only has to forget it.
type Instance struct {
	// Setup initialises the automaton. It is invoked once, after the
	// registry has recorded the entry.
	Setup func(ctx context.Context) error

	// Teardown releases whatever Setup acquired. It is only invoked by a
	// graceful shutdown, never by kill.
	Teardown func(ctx context.Context) error
}

// HasSetup reports whether the instance exposes a setup capability.
func (i *Instance) HasSetup() bool {
	return i != nil && i.Setup != nil
}

// HasTeardown reports whether the instance exposes a teardown capability.
func (i *Instance) HasTeardown() bool {
	return i != nil && i.Teardown != nil
}

// Executor turns an automaton's code body into a running Instance.
//
// The name is passed for diagnostics only. Implementations must not retain
// the context beyond the call.
type Executor interface {
	Execute(ctx context.Context, code, name string) (*Instance, error)
}
