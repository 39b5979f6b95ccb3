// Package testutil provides test doubles for the automaton host: a scripted
// execution environment, an event recorder and a manifest renderer.
package testutil

import (
	"context"
	"errors"
	"sync"

	"automata/pkg/automaton"
)

// Behavior scripts how FakeExecutor treats one automaton name.
type Behavior struct {
	// ExecuteErr makes Execute fail.
	ExecuteErr error

	// NilInstance makes Execute return (nil, nil).
	NilInstance bool

	// NoSetup / NoTeardown omit the capability from the instance.
	NoSetup    bool
	NoTeardown bool

	SetupErr    error
	TeardownErr error

	// SetupHook runs inside setup before it returns.
	SetupHook func(ctx context.Context)
}

// FakeExecutor implements automaton.Executor with scripted behaviour.
// Unscripted names get an instance whose setup and teardown succeed.
type FakeExecutor struct {
	mu        sync.Mutex
	behaviors map[string]Behavior
	executed  []string
	codes     map[string]string
	setups    []string
	teardowns []string
}

// NewFakeExecutor creates an executor with no scripted behaviours.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		behaviors: make(map[string]Behavior),
		codes:     make(map[string]string),
	}
}

// On scripts the behaviour for name and returns the executor for chaining.
func (f *FakeExecutor) On(name string, b Behavior) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[name] = b
	return f
}

// Execute records the call and builds an instance per the scripted behaviour.
func (f *FakeExecutor) Execute(_ context.Context, code, name string) (*automaton.Instance, error) {
	f.mu.Lock()
	f.executed = append(f.executed, name)
	f.codes[name] = code
	b := f.behaviors[name]
	f.mu.Unlock()

	if b.ExecuteErr != nil {
		return nil, b.ExecuteErr
	}
	if b.NilInstance {
		return nil, nil
	}

	inst := &automaton.Instance{}
	if !b.NoSetup {
		inst.Setup = func(ctx context.Context) error {
			if b.SetupHook != nil {
				b.SetupHook(ctx)
			}
			f.mu.Lock()
			f.setups = append(f.setups, name)
			f.mu.Unlock()
			return b.SetupErr
		}
	}
	if !b.NoTeardown {
		inst.Teardown = func(context.Context) error {
			f.mu.Lock()
			f.teardowns = append(f.teardowns, name)
			f.mu.Unlock()
			return b.TeardownErr
		}
	}
	return inst, nil
}

// Executed returns the names passed to Execute, in call order.
func (f *FakeExecutor) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

// Code returns the last code body executed for name.
func (f *FakeExecutor) Code(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[name]
}

// Setups returns the names whose setup ran, in call order.
func (f *FakeExecutor) Setups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.setups...)
}

// Teardowns returns the names whose teardown ran, in call order.
func (f *FakeExecutor) Teardowns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.teardowns...)
}

// ErrScripted is a convenience error for scripted failures.
var ErrScripted = errors.New("scripted failure")
