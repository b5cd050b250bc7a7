package events

import "time"

// Type names a session lifecycle event.
type Type string

const (
	EntryRegistered  Type = "entry.registered"
	ExitProcessed    Type = "exit.processed"
	SessionDeleted   Type = "session.deleted"
	ConflictDetected Type = "conflict.detected"
	ShiftClosed      Type = "shift.closed"
)

// Event is one message on the live feed.
type Event struct {
	Type Type        `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Publisher accepts events for broadcast. Publishing never blocks the caller.
type Publisher interface {
	Publish(evt Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
