package luaenv

import "errors"

// Errors for Lua execution.
var (
	// ErrStateClosed is returned when calling into an instance whose state
	// has already been released by a successful teardown.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a chunk or capability call runs
	// past the configured timeout.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNoInstance is returned when a code body does not return a table.
	ErrNoInstance = errors.New("code body did not return an instance table")
)
