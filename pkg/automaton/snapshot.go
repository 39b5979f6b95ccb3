package automaton

// Status is the lifecycle state of a registered automaton.
type Status string

// Statuses reported for registered automata. An automaton that is not
// registered has no status at all.
const (
	StatusLoading    Status = "loading"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
)

// Snapshot is a point-in-time copy of a registry entry.
type Snapshot struct {
	Definition
	SourceURL string `json:"source_url"`
	Status    Status `json:"status"`
}
