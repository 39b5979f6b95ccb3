// Package registry owns the set of loaded automata and their lifecycle:
// load, shutdown, kill and restart.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"automata/internal/clock"
	"automata/internal/events"
	"automata/pkg/automaton"
)

// DefaultRestartDelay is the pause between the shutdown and the reload
// halves of a restart.
const DefaultRestartDelay = 500 * time.Millisecond

const eventSource = "registry"

// Mirror is notified of every change to the registry contents.
type Mirror interface {
	Publish(s automaton.Snapshot)
	Remove(name string)
}

type nopMirror struct{}

func (nopMirror) Publish(automaton.Snapshot) {}
func (nopMirror) Remove(string) {}

type entry struct {
	instance  *automaton.Instance
	def       automaton.Definition
	sourceURL string
	status    automaton.Status

	// stopping is set while a teardown is in flight.
	stopping bool

	// removedBy records how the entry left the registry while its setup
	// was still running.
	removedBy events.Reason
}

func (e *entry) snapshot() automaton.Snapshot {
	return automaton.Snapshot{
		Definition: e.def.Clone(),
		SourceURL:  e.sourceURL,
		Status:     e.status,
	}
}

// Config holds the registry collaborators.
type Config struct {
	Executor     automaton.Executor
	Events       events.Publisher
	Mirror       Mirror
	Clock        clock.Clock
	RestartDelay time.Duration
	Logger       *zap.Logger
}

// Registry maps automaton names to loaded entries. All methods are safe for
// concurrent use; no lock is held while calling into an instance.
type Registry struct {
	executor     automaton.Executor
	events       events.Publisher
	mirror       Mirror
	clock        clock.Clock
	restartDelay time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates a registry. Executor and Events are required.
func New(cfg Config) *Registry {
	r := &Registry{
		executor:     cfg.Executor,
		events:       cfg.Events,
		mirror:       cfg.Mirror,
		clock:        cfg.Clock,
		restartDelay: cfg.RestartDelay,
		logger:       cfg.Logger,
		entries:      make(map[string]*entry),
	}
	if r.mirror == nil {
		r.mirror = nopMirror{}
	}
	if r.clock == nil {
		r.clock = clock.NewRealClock()
	}
	if r.restartDelay <= 0 {
		r.restartDelay = DefaultRestartDelay
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("registry")
	return r
}

// Load runs the per-automaton load procedure: execute the code body,
// register the entry, run setup, then announce the automaton.
//
// A failed setup rolls the registration back. Failures are logged and
// emitted as error_occurred before being returned.
func (r *Registry) Load(ctx context.Context, def automaton.Definition, sourceURL string) error {
	def = def.Clone()
	logger := r.logger.With(zap.String("automaton", def.Name), zap.String("source_url", sourceURL))

	if r.has(def.Name) {
		return r.loadFailed(logger, def.Name, ErrAlreadyLoaded)
	}

	inst, err := r.executor.Execute(ctx, def.Code, def.Name)
	if err == nil && inst == nil {
		err = errors.New("execution environment returned no instance")
	}
	if err != nil {
		return r.loadFailed(logger, def.Name, &ExecutionError{Name: def.Name, Phase: PhaseExecute, Err: err})
	}

	e := &entry{
		instance:  inst,
		def:       def,
		sourceURL: sourceURL,
		status:    automaton.StatusLoading,
	}
	r.mu.Lock()
	if _, exists := r.entries[def.Name]; exists {
		r.mu.Unlock()
		return r.loadFailed(logger, def.Name, ErrAlreadyLoaded)
	}
	r.entries[def.Name] = e
	r.order = append(r.order, def.Name)
	snap := e.snapshot()
	r.mu.Unlock()
	r.mirror.Publish(snap)

	if inst.HasSetup() {
		if err := inst.Setup(ctx); err != nil {
			if r.removeIf(def.Name, e) {
				r.mirror.Remove(def.Name)
			}
			return r.loadFailed(logger, def.Name, &ExecutionError{Name: def.Name, Phase: PhaseSetup, Err: err})
		}
	}

	r.mu.Lock()
	current := r.entries[def.Name] == e
	if current {
		e.status = automaton.StatusRunning
		snap = e.snapshot()
	}
	removedBy := e.removedBy
	r.mu.Unlock()

	if !current {
		// A shutdown that arrived mid-setup skipped the teardown; run it
		// now that setup is done. A kill never calls into the instance.
		if removedBy == events.ReasonShutdown && inst.HasTeardown() {
			if err := inst.Teardown(ctx); err != nil {
				logger.Warn("Deferred teardown failed", zap.Error(err))
			}
		}
		return r.loadFailed(logger, def.Name, ErrUnloadedDuringSetup)
	}

	r.mirror.Publish(snap)
	logger.Info("Automaton loaded",
		zap.String("version", def.Version),
		zap.Int("priority", def.Priority))
	r.events.Publish(events.Loaded(def))
	return nil
}

func (r *Registry) loadFailed(logger *zap.Logger, name string, err error) error {
	logger.Error("Failed to load automaton", zap.Error(err))
	r.events.Publish(events.Failure(err, "failed to load automaton "+name, eventSource, events.SeverityError))
	return err
}

// Shutdown tears the automaton down and removes it. When teardown fails the
// entry stays registered.
func (r *Registry) Shutdown(ctx context.Context, name string) error {
	const op = "shutdown"
	logger := r.logger.With(zap.String("automaton", name))

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return r.operationFailed(logger, op, name, ErrNotLoaded, false)
	}
	if e.stopping {
		r.mu.Unlock()
		return r.operationFailed(logger, op, name, ErrBusy, false)
	}
	if e.status == automaton.StatusLoading {
		// Setup is still running; Load finishes the teardown.
		e.removedBy = events.ReasonShutdown
		r.removeLocked(name)
		r.mu.Unlock()
		r.unloaded(logger, name, events.ReasonShutdown)
		return nil
	}
	e.stopping = true
	inst := e.instance
	r.mu.Unlock()

	var err error
	if inst.HasTeardown() {
		err = inst.Teardown(ctx)
	}

	r.mu.Lock()
	e.stopping = false
	if err != nil {
		r.mu.Unlock()
		return r.operationFailed(logger, op, name, err, true)
	}
	current := r.entries[name] == e
	if current {
		r.removeLocked(name)
	}
	r.mu.Unlock()

	if current {
		r.unloaded(logger, name, events.ReasonShutdown)
	}
	return nil
}

// Kill removes the automaton without calling into its instance.
func (r *Registry) Kill(name string) error {
	logger := r.logger.With(zap.String("automaton", name))

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return r.operationFailed(logger, "kill", name, ErrNotLoaded, false)
	}
	if e.status == automaton.StatusLoading {
		e.removedBy = events.ReasonKilled
	}
	r.removeLocked(name)
	r.mu.Unlock()

	r.unloaded(logger, name, events.ReasonKilled)
	return nil
}

// Restart shuts the automaton down, waits for the restart delay and loads
// it again from the captured definition and source URL.
func (r *Registry) Restart(ctx context.Context, name string) error {
	const op = "restart"
	logger := r.logger.With(zap.String("automaton", name))

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return r.operationFailed(logger, op, name, ErrNotLoaded, false)
	}
	if e.stopping || e.status != automaton.StatusRunning {
		r.mu.Unlock()
		return r.operationFailed(logger, op, name, ErrBusy, false)
	}
	e.status = automaton.StatusRestarting
	def := e.def.Clone()
	sourceURL := e.sourceURL
	snap := e.snapshot()
	r.mu.Unlock()
	r.mirror.Publish(snap)

	logger.Info("Restarting automaton")

	if err := r.Shutdown(ctx, name); err != nil {
		r.mu.Lock()
		current := r.entries[name] == e
		if current {
			e.status = automaton.StatusRunning
			snap = e.snapshot()
		}
		r.mu.Unlock()
		if current {
			r.mirror.Publish(snap)
		}
		return &OperationError{Op: op, Name: name, Err: err}
	}

	if err := r.clock.Sleep(ctx, r.restartDelay); err != nil {
		return r.operationFailed(logger, op, name, err, true)
	}

	if err := r.Load(ctx, def, sourceURL); err != nil {
		return &OperationError{Op: op, Name: name, Err: err}
	}
	return nil
}

func (r *Registry) operationFailed(logger *zap.Logger, op, name string, err error, emit bool) error {
	opErr := &OperationError{Op: op, Name: name, Err: err}
	if !emit {
		logger.Warn("Operation rejected", zap.String("op", op), zap.Error(err))
		return opErr
	}
	logger.Error("Operation failed", zap.String("op", op), zap.Error(err))
	r.events.Publish(events.Failure(err, op+" of "+name+" failed", eventSource, events.SeverityError))
	return opErr
}

func (r *Registry) unloaded(logger *zap.Logger, name string, reason events.Reason) {
	r.mirror.Remove(name)
	logger.Info("Automaton unloaded", zap.String("reason", string(reason)))
	r.events.Publish(events.Unloaded(name, reason))
}

func (r *Registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// removeIf deletes name only while it still maps to e.
func (r *Registry) removeIf(name string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[name] != e {
		return false
	}
	r.removeLocked(name)
	return true
}

func (r *Registry) removeLocked(name string) {
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// List returns the loaded names in load order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Info returns a snapshot of the named entry.
func (r *Registry) Info(name string) (automaton.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return automaton.Snapshot{}, false
	}
	return e.snapshot(), true
}

// ListAll returns a snapshot of every entry in load order.
func (r *Registry) ListAll() []automaton.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]automaton.Snapshot, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].snapshot())
	}
	return out
}
