package events

import "github.com/smazurov/framelink/internal/control"

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeSessionTerminated
	TypeControlApplied
	TypeFrameRate
	TypeProducerConnected
	TypeProducerDisconnected
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every state machine transition.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" example:"6f1c2a0e-5b7d-4e43-9a51-1d0f3c9b8e21" doc:"Session identifier, empty while idle"`
	From      string `json:"from" example:"connecting" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// SessionTerminatedEvent is published once when a session ends on an error.
// An explicit stop does not publish it.
type SessionTerminatedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Kind      string `json:"kind" example:"transport" doc:"Error kind: validation, connect, transport, device"`
	Message   string `json:"message" example:"consumer closed the connection" doc:"Human readable cause"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Termination time"`
}

// Type returns the event type identifier for SessionTerminatedEvent.
func (e SessionTerminatedEvent) Type() uint32 { return TypeSessionTerminated }

// ControlAppliedEvent reports parameters after a control command or
// settings change was clamped and applied.
type ControlAppliedEvent struct {
	SessionID  string             `json:"session_id" doc:"Session identifier"`
	Command    string             `json:"command" example:"ZOOM:2.00" doc:"Command as received, or settings for a settings change"`
	Parameters control.Parameters `json:"parameters" doc:"Parameters now in effect"`
	Timestamp  string             `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Apply time"`
}

// Type returns the event type identifier for ControlAppliedEvent.
func (e ControlAppliedEvent) Type() uint32 { return TypeControlApplied }

// FrameRateEvent is a periodic throughput sample of a producer session or
// a listener connection.
type FrameRateEvent struct {
	Source    string  `json:"source" example:"session" doc:"session or listener"`
	SessionID string  `json:"session_id,omitempty" doc:"Session identifier for producer samples"`
	FPS       float64 `json:"fps" example:"29.8" doc:"Frames per second over the last window"`
	Frames    uint64  `json:"frames" doc:"Frames since the session started"`
	Drops     uint64  `json:"drops" doc:"Frames overwritten before being sent or shown"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Sample time"`
}

// Type returns the event type identifier for FrameRateEvent.
func (e FrameRateEvent) Type() uint32 { return TypeFrameRate }

// ProducerConnectedEvent is published by the listener after a producer's
// metadata message was accepted.
type ProducerConnectedEvent struct {
	Remote     string `json:"remote" example:"192.168.1.20:53122" doc:"Producer address"`
	CameraID   string `json:"camera_id" doc:"Camera identifier from metadata"`
	Resolution string `json:"resolution" example:"1280x720" doc:"Frame resolution from metadata"`
	Timestamp  string `json:"timestamp" doc:"Connection time"`
}

// Type returns the event type identifier for ProducerConnectedEvent.
func (e ProducerConnectedEvent) Type() uint32 { return TypeProducerConnected }

// ProducerDisconnectedEvent is published by the listener when a producer
// connection ends.
type ProducerDisconnectedEvent struct {
	Remote    string `json:"remote" doc:"Producer address"`
	Frames    uint64 `json:"frames" doc:"Frames received"`
	Reason    string `json:"reason,omitempty" doc:"Error that ended the connection, if any"`
	Timestamp string `json:"timestamp" doc:"Disconnection time"`
}

// Type returns the event type identifier for ProducerDisconnectedEvent.
func (e ProducerDisconnectedEvent) Type() uint32 { return TypeProducerDisconnected }
