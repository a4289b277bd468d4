package handle

// Handle is an opaque token for a host-side record.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Invalid is the "none/failure/not found" handle.
const Invalid Handle = 0

// Valid reports whether h may refer to a record.
func (h Handle) Valid() bool { return h != Invalid }

// EventType identifies a table lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a record lifecycle event.
type Event[T any] struct {
	Value  T
	Handle Handle
	Type   EventType
}

// Observer receives notifications about record lifecycle events.
// Observers run after the table lock is released and may call back into
// the table.
type Observer[T any] interface {
	OnHandleEvent(Event[T])
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[T any] func(Event[T])

// OnHandleEvent calls f(e).
func (f ObserverFunc[T]) OnHandleEvent(e Event[T]) { f(e) }
