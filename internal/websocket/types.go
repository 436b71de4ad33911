package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeStatus carries a pipeline progress checkpoint
	EventTypeStatus EventType = "processing:status"
	// EventTypeError reports a failed run
	EventTypeError EventType = "processing:error"
	// EventTypeComplete reports a finished run
	EventTypeComplete EventType = "processing:complete"
	// EventTypeConnection tells a client its ID after the upgrade
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	JobID     string      `json:"jobId,omitempty"`
}

// StatusEvent is a progress checkpoint for one job
type StatusEvent struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// ErrorEvent reports why a job failed
type ErrorEvent struct {
	Error string `json:"error"`
}

// CompleteEvent describes a finished job
type CompleteEvent struct {
	ProcessedURL string `json:"processedUrl"`
	Detections   int    `json:"detections"`
	RecordingID  int64  `json:"recordingId,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected"
	ClientID string `json:"clientId"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string
}
