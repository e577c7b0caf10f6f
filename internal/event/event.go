package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a typed payload published on a topic.
type Event[T any] struct {
	Topic    Topic
	Payload  T
	Metadata Metadata
}

// Metadata is attached to every event.
type Metadata struct {
	// ID uniquely identifies the event instance.
	ID string
	// Timestamp is when the event was created.
	Timestamp time.Time
	// Source names the component that published the event.
	Source string
}

// New creates an event with fresh metadata.
func New[T any](topic Topic, payload T, source string) Event[T] {
	return Event[T]{
		Topic:   topic,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// EventTopic implements TopicProvider.
func (e Event[T]) EventTopic() Topic {
	return e.Topic
}

// TopicProvider is implemented by every publishable event.
type TopicProvider interface {
	EventTopic() Topic
}
