package capture

import (
	"fmt"
	"sync/atomic"
)

// Half identifies one of the two regions of a Buffer
type Half int

const (
	HalfA Half = iota
	HalfB
)

func (h Half) other() Half {
	return 1 - h
}

func (h Half) String() string {
	if h == HalfA {
		return "A"
	}
	return "B"
}

// event returns the notification raised when h has been completely written
func (h Half) event() Event {
	if h == HalfA {
		return EventHalfFilled
	}
	return EventFull
}

// HalfFor maps a ready event to the half it hands off
func HalfFor(ev Event) (Half, bool) {
	switch ev {
	case EventHalfFilled:
		return HalfA, true
	case EventFull:
		return HalfB, true
	default:
		return 0, false
	}
}

// ownership tags for a half
const (
	halfFree     int32 = iota // owned by the producer
	halfReady                 // filled, event posted, not yet leased
	halfDraining              // leased to the consumer
)

// BufferStats reports the losses a buffer has absorbed
type BufferStats struct {
	// DroppedHalves counts halves whose ready event was overwritten before the consumer saw it
	DroppedHalves uint64 `json:"dropped_halves"`
	// OverrunBytes counts producer bytes discarded because the next half was still leased
	OverrunBytes uint64 `json:"overrun_bytes"`
}

// Buffer is the two-half sample arena the source writes into continuously.
//
// The producer fills half A, hands it off with EventHalfFilled, fills half B,
// hands it off with EventFull and wraps. A half is only ever accessible to one
// side: the producer writes into free halves, the consumer reads through a
// Lease obtained with Acquire. Ownership moves through an atomic tag per half.
type Buffer struct {
	halves   [2][]byte
	state    [2]atomic.Int32
	halfSize int
	events   *EventChannel

	// producer-only fields
	filling Half
	offset  int

	// set by Discard, consumed by the producer on its next Write
	resync atomic.Bool

	droppedHalves atomic.Uint64
	overrunBytes  atomic.Uint64
}

// NewBuffer allocates a buffer with two halves of halfSize bytes that posts
// its ready events to events
func NewBuffer(halfSize int, events *EventChannel) (*Buffer, error) {
	if halfSize <= 0 {
		return nil, fmt.Errorf("buffer half size must be > 0, got %d", halfSize)
	}
	if events == nil {
		return nil, fmt.Errorf("event channel is required")
	}

	arena := make([]byte, 2*halfSize)
	return &Buffer{
		halves:   [2][]byte{arena[:halfSize:halfSize], arena[halfSize:]},
		halfSize: halfSize,
		events:   events,
	}, nil
}

// HalfSize returns the length in bytes of one half
func (b *Buffer) HalfSize() int {
	return b.halfSize
}

// Events returns the channel ready events are posted to
func (b *Buffer) Events() *EventChannel {
	return b.events
}

// Write is the producer entry point. It must only be called from the single
// notification context of the source. It never blocks and returns the number
// of bytes stored; bytes that arrive while the next half is still leased to
// the consumer are discarded and counted as overrun.
func (b *Buffer) Write(p []byte) int {
	if b.resync.CompareAndSwap(true, false) {
		b.offset = 0
	}

	stored := 0
	for len(p) > 0 {
		h := b.filling
		if b.state[h].Load() != halfFree {
			b.overrunBytes.Add(uint64(len(p)))
			break
		}

		n := copy(b.halves[h][b.offset:], p)
		b.offset += n
		stored += n
		p = p[n:]

		if b.offset == b.halfSize {
			b.handOff(h)
			b.filling = h.other()
			b.offset = 0
		}
	}
	return stored
}

// handOff marks h ready and posts its event, reclaiming any half whose event
// was overwritten in the process
func (b *Buffer) handOff(h Half) {
	b.state[h].Store(halfReady)
	if dropped := b.events.Post(h.event()); dropped != EventNone {
		b.reclaim(dropped)
	}
}

// reclaim returns the half referenced by an unconsumed event to the producer
func (b *Buffer) reclaim(ev Event) bool {
	h, ok := HalfFor(ev)
	if !ok {
		return false
	}
	if b.state[h].CompareAndSwap(halfReady, halfFree) {
		b.droppedHalves.Add(1)
		return true
	}
	return false
}

// Acquire leases the half announced by ev to the consumer. It reports false
// if the event does not refer to a ready half.
func (b *Buffer) Acquire(ev Event) (*Lease, bool) {
	h, ok := HalfFor(ev)
	if !ok {
		return nil, false
	}
	if !b.state[h].CompareAndSwap(halfReady, halfDraining) {
		return nil, false
	}
	return &Lease{buf: b, half: h, data: b.halves[h]}, true
}

// Discard drops a pending ready event and gives its half back to the
// producer. The bytes already copied into the half being filled are dropped
// too: the producer restarts that half on its next Write. It must only be
// called while the consumer is not receiving.
func (b *Buffer) Discard() Event {
	b.resync.Store(true)
	ev := b.events.Flush()
	if ev != EventNone {
		b.reclaim(ev)
	}
	return ev
}

// Stats returns a snapshot of the loss counters
func (b *Buffer) Stats() BufferStats {
	return BufferStats{
		DroppedHalves: b.droppedHalves.Load(),
		OverrunBytes:  b.overrunBytes.Load(),
	}
}

// Lease is the consumer's exclusive handle on one drained half
type Lease struct {
	buf  *Buffer
	half Half
	data []byte
}

// Half returns which half is leased
func (l *Lease) Half() Half {
	return l.half
}

// Bytes returns the leased half. The slice must not be retained after Release.
func (l *Lease) Bytes() []byte {
	return l.data
}

// Release hands the half back to the producer and invalidates the lease
func (l *Lease) Release() {
	if l.data == nil {
		return
	}
	l.data = nil
	l.buf.state[l.half].Store(halfFree)
}
