package core

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event pushed on a task's stream.
type EventType string

const (
	EventMessage         EventType = "message"
	EventAgentStatus     EventType = "agent_status"
	EventTaskUpdate      EventType = "task_update"
	EventToolCallStart   EventType = "tool_call_start"
	EventToolCallDelta   EventType = "tool_call_delta"
	EventToolCallResult  EventType = "tool_call_result"
	EventArtifactUpdate  EventType = "artifact_update"
	EventArtifactCreated EventType = "artifact_created"
	EventMemoryUpdated   EventType = "memory_updated"
)

// Event is the tagged envelope delivered on a task's event stream.
// Consumers discriminate on Type and decode Data themselves; unknown
// types must be skipped, not treated as errors.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an Event, marshalling data into the payload.
func NewEvent(typ EventType, data any) (Event, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		raw = b
	}
	return Event{Type: typ, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// StatusPayload is the Data shape of agent_status and task_update events.
type StatusPayload struct {
	TaskID string     `json:"task_id"`
	Agent  string     `json:"agent,omitempty"`
	Status TaskStatus `json:"status"`
}

// MessagePayload is the Data shape of generic message events. It carries a
// single appended log line so viewers can refresh out-of-band.
type MessagePayload struct {
	TaskID string `json:"task_id"`
	Line   string `json:"line"`
}

// ArtifactPayload is the Data shape of artifact_created and artifact_update
// events.
type ArtifactPayload struct {
	TaskID   string `json:"task_id"`
	Artifact string `json:"artifact"`
	Path     string `json:"path,omitempty"`
}
