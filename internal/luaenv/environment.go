// Package luaenv runs automaton code bodies on an embedded Lua VM.
//
// A code body is a Lua chunk that returns a table. The optional "setup" and
// "teardown" fields of that table become the instance's capabilities and are
// called with the table as their first argument:
//
//	local M = {}
//
//	function M:setup()
//	    automaton.log("info", "hello from " .. automaton.name)
//	end
//
//	function M:teardown()
//	end
//
//	return M
//
// Each automaton gets its own sandboxed state: no io, os, debug or package
// libraries and no way to load further chunks.
package luaenv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"automata/pkg/automaton"
)

// DefaultExecTimeout bounds the chunk itself and each capability call.
const DefaultExecTimeout = 5 * time.Second

// Option configures an Environment.
type Option func(*Environment)

// WithExecTimeout sets the timeout for each call into Lua.
func WithExecTimeout(d time.Duration) Option {
	return func(e *Environment) {
		if d > 0 {
			e.execTimeout = d
		}
	}
}

// WithNamespace exposes the running-automata namespace to Lua code.
func WithNamespace(ns Namespace) Option {
	return func(e *Environment) {
		e.namespace = ns
	}
}

// Environment implements automaton.Executor with gopher-lua.
type Environment struct {
	logger      *zap.Logger
	namespace   Namespace
	execTimeout time.Duration
}

// NewEnvironment creates a Lua execution environment.
func NewEnvironment(logger *zap.Logger, opts ...Option) *Environment {
	e := &Environment{
		logger:      logger.Named("lua"),
		execTimeout: DefaultExecTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs code in a fresh state and wraps the returned table.
func (e *Environment) Execute(ctx context.Context, code, name string) (*automaton.Instance, error) {
	logger := e.logger.With(zap.String("automaton", name))

	L, err := newSandboxedState(name, logger, e.namespace)
	if err != nil {
		return nil, fmt.Errorf("creating lua state: %w", err)
	}

	inst := &instance{L: L, timeout: e.execTimeout}

	var ret lua.LValue
	err = inst.run(ctx, func() error {
		fn, err := L.LoadString(code)
		if err != nil {
			return err
		}
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	if err != nil {
		inst.close()
		return nil, err
	}

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		inst.close()
		return nil, fmt.Errorf("%w (got %s)", ErrNoInstance, ret.Type())
	}
	inst.table = tbl

	out := &automaton.Instance{}
	if fn, ok := tbl.RawGetString("setup").(*lua.LFunction); ok {
		out.Setup = func(ctx context.Context) error {
			return inst.call(ctx, fn)
		}
	}
	if fn, ok := tbl.RawGetString("teardown").(*lua.LFunction); ok {
		out.Teardown = func(ctx context.Context) error {
			if err := inst.call(ctx, fn); err != nil {
				return err
			}
			inst.close()
			return nil
		}
	}

	logger.Debug("Code body executed",
		zap.Bool("has_setup", out.HasSetup()),
		zap.Bool("has_teardown", out.HasTeardown()))
	return out, nil
}

// instance serializes every call into one LState.
type instance struct {
	mu      sync.Mutex
	L       *lua.LState
	table   *lua.LTable
	timeout time.Duration
	closed  bool
}

func (i *instance) call(ctx context.Context, fn *lua.LFunction) error {
	return i.run(ctx, func() error {
		return i.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, i.table)
	})
}

// run executes fn under the instance lock with a timeout and panic recovery.
func (i *instance) run(ctx context.Context, fn func() error) (err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrStateClosed
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	i.L.SetContext(ctx)
	defer i.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	if err := fn(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
		return err
	}
	return nil
}

func (i *instance) close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}
	i.L.Close()
	i.closed = true
}
