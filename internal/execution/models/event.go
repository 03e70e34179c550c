package models

import "time"

// EventKind names a lifecycle event recorded in the history.
type EventKind string

const (
	EventSpawn    EventKind = "spawn"
	EventReap     EventKind = "reap"
	EventDispatch EventKind = "dispatch"
	EventDrop     EventKind = "drop"
	EventControl  EventKind = "control"
	EventState    EventKind = "state"
)

// Event is one entry of the supervisor's diagnostic history.
type Event struct {
	Time      time.Time   `json:"time"`
	Kind      EventKind   `json:"kind"`
	Pid       int         `json:"pid,omitempty"`
	CommandID string      `json:"command,omitempty"`
	Exit      *ExitStatus `json:"exit,omitempty"`
	Message   string      `json:"message,omitempty"`
}
