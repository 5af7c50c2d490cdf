// Package events provides an asynchronous event bus that decouples the poll
// pipeline from MQTT, push and SSE delivery.
package events

import "time"

// Event is something the pipeline publishes for external collaborators.
type Event interface {
	// EventType returns a stable identifier such as "nowplaying"
	EventType() string

	// Channels lists the logical channels the event is addressed to
	Channels() []string

	// StationSlug returns the slug of the station the event concerns
	StationSlug() string

	// Timestamp returns when the event happened
	Timestamp() time.Time
}

// EventConsumer processes events delivered by the bus
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event. Consumers ignore event types
	// they do not handle.
	ProcessEvent(event Event) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
