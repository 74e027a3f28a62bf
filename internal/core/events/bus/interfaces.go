package bus

import "time"

// EventBus is the in-process event manager particle systems report to.
//
// - Type-based fan-out: handlers subscribe by Event.Type(), or to Wildcard for every type.
// - Topics scope delivery; a particle system publishes into a topic named after itself
//   and the default topic "" receives everything published anywhere.
// - Delivery is synchronous in the publisher goroutine. Handler errors are joined.
// - All methods are safe for concurrent use.
type EventBus interface {
	// Publish delivers the event to subscribers of the default topic.
	Publish(event Event) error
	// PublishToTopic delivers to subscribers of topic and of the default topic.
	PublishToTopic(topic string, event Event) error
	// PublishBatch publishes events in order and joins every handler error.
	PublishBatch(topic string, events ...Event) error
	// PublishAsync publishes in a new goroutine; the channel receives the joined error and closes.
	PublishAsync(topic string, event Event) <-chan error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error)
	Unsubscribe(Subscription) error

	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	GetMetrics() EventBusMetrics
	GetTopics() []TopicInfo
}

// Wildcard subscribes a handler to every event type of a topic.
const Wildcard = "*"

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
)

// Subscription is a registered handler bound to a topic and event type.
type Subscription interface {
	ID() string
	Topic() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries. Observers should return quickly.
type EventBusObserver interface {
	OnPublish(topic, eventType string, event Event)
	OnDelivered(topic, eventType string, handlers int, err error, durationMicros int64)
}

// EventBusMetrics holds counters that are updated on every delivery.
type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
	Topics            uint64
}

type TopicInfo struct {
	Name       string
	EventTypes int
	Subs       int
}
