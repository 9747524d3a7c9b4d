// Package events provides the in-process pub/sub bus for deployment and
// drift events. The API streams it to websocket clients and an optional
// forwarder republishes it on NATS.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// A deployment was persisted in a new state.
	EventDeploymentState EventType = "deployment.state"
	// A router no longer matches its last deployed configuration.
	EventDriftDetected EventType = "drift.detected"
	// The serve command swapped in a new configuration.
	EventConfigReloaded EventType = "config.reloaded"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // component that emitted it
	Data      any       `json:"data"`
}

// DeploymentStateData is the payload of EventDeploymentState.
type DeploymentStateData struct {
	ID      string   `json:"id"`
	State   string   `json:"state"`
	Routers []string `json:"routers"`
	Errors  string   `json:"errors,omitempty"`
}

// DriftData is the payload of EventDriftDetected.
type DriftData struct {
	Router     string `json:"router"`
	Operations int    `json:"operations"`
	Diff       string `json:"diff,omitempty"`
}

// ConfigReloadData is the payload of EventConfigReloaded.
type ConfigReloadData struct {
	Path    string `json:"path"`
	Routers int    `json:"routers"`
}
