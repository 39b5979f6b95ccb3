// Package events is the notification surface of the automaton host.
//
// The registry and loaders publish three kinds of events: an automaton was
// loaded, an automaton was unloaded, and an error occurred. Delivery is
// fire-and-forget; publishers never learn whether anyone listened.
package events

import (
	"time"

	"automata/pkg/automaton"
)

// Type names an event.
type Type string

// Event types.
const (
	TypeAutomatonLoaded   Type = "automaton_loaded"
	TypeAutomatonUnloaded Type = "automaton_unloaded"
	TypeErrorOccurred     Type = "error_occurred"
)

// Reason explains why an automaton was unloaded.
type Reason string

// Unload reasons.
const (
	ReasonShutdown Reason = "shutdown"
	ReasonKilled   Reason = "killed"
)

// Severity grades an error_occurred event.
type Severity string

// Severities.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a single notification. Which fields are set depends on Type.
type Event struct {
	ID   string    `json:"id"`
	Type Type      `json:"type"`
	Time time.Time `json:"time"`

	// automaton_loaded / automaton_unloaded
	Name       string   `json:"name,omitempty"`
	Version    string   `json:"version,omitempty"`
	RespondsTo []string `json:"respondsto,omitempty"`
	Controls   []string `json:"controls,omitempty"`
	Reason     Reason   `json:"reason,omitempty"`

	// error_occurred
	Error    string   `json:"error,omitempty"`
	Message  string   `json:"message,omitempty"`
	Source   string   `json:"source,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// Loaded builds an automaton_loaded event for def.
func Loaded(def automaton.Definition) Event {
	c := def.Clone()
	return Event{
		Type:       TypeAutomatonLoaded,
		Name:       c.Name,
		Version:    c.Version,
		RespondsTo: c.RespondsTo,
		Controls:   c.Controls,
	}
}

// Unloaded builds an automaton_unloaded event.
func Unloaded(name string, reason Reason) Event {
	return Event{
		Type:   TypeAutomatonUnloaded,
		Name:   name,
		Reason: reason,
	}
}

// Failure builds an error_occurred event. A nil err leaves Error empty.
func Failure(err error, message, source string, severity Severity) Event {
	e := Event{
		Type:     TypeErrorOccurred,
		Message:  message,
		Source:   source,
		Severity: severity,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
