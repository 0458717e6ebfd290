package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the scene
const (
	TopicLayout    = "layout"    // layout status, last event replayed
	TopicEdges     = "edges"     // edge diffs, not replayed
	TopicFrames    = "frames"    // camera and interaction state per frame
	TopicSelection = "selection" // selection and detail view changes
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "layout", "edges")
	Type    string          `json:"type"`    // Event type (e.g., "computed", "diff", "frame")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// LayoutStatus describes the state of the current layout
type LayoutStatus struct {
	State      string  `json:"state"`   // loading, computed, reused, failed
	Message    string  `json:"message"` // Human-readable status message
	Nodes      int     `json:"nodes"`
	Links      int     `json:"links"`
	Compliance float64 `json:"compliance"` // Collision compliance of the layout
	Hash       string  `json:"hash,omitempty"`
}

// SelectionEvent reports a selection or a detail view being opened
type SelectionEvent struct {
	NodeID string `json:"nodeId"`
	Detail bool   `json:"detail"` // True when the detail view opens
}
