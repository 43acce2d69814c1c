package capture

// Event is a buffer-ready notification raised by the sample source
type Event uint8

const (
	EventNone Event = iota
	// EventHalfFilled means half A has been completely written
	EventHalfFilled
	// EventFull means half B has been completely written and the source wrapped to half A
	EventFull
)

func (e Event) String() string {
	switch e {
	case EventHalfFilled:
		return "half-filled"
	case EventFull:
		return "full"
	default:
		return "none"
	}
}

// EventChannel carries buffer-ready events from the source's notification
// context to the consumer. It holds at most one pending event and Post never
// blocks: a post into an occupied slot replaces the older event, which is
// handed back to the producer so the half it referred to can be reclaimed.
//
// There must be exactly one producer.
type EventChannel struct {
	ch chan Event
}

// NewEventChannel creates an empty single-slot event channel
func NewEventChannel() *EventChannel {
	return &EventChannel{ch: make(chan Event, 1)}
}

// Post stores ev without blocking and returns the event it overwrote, or
// EventNone if the slot was empty
func (c *EventChannel) Post(ev Event) Event {
	select {
	case c.ch <- ev:
		return EventNone
	default:
	}

	dropped := EventNone
	select {
	case dropped = <-c.ch:
	default:
		// The consumer took it in between
	}

	// Only the producer sends, so the slot is empty now
	select {
	case c.ch <- ev:
	default:
	}
	return dropped
}

// C returns the receive side for use in a select
func (c *EventChannel) C() <-chan Event {
	return c.ch
}

// Flush removes and returns the pending event, if any
func (c *EventChannel) Flush() Event {
	select {
	case ev := <-c.ch:
		return ev
	default:
		return EventNone
	}
}
