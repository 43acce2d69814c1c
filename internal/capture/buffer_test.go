package capture

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T, halfSize int) *Buffer {
	t.Helper()
	buf, err := NewBuffer(halfSize, NewEventChannel())
	require.NoError(t, err)
	return buf
}

func TestNewBuffer_Validation(t *testing.T) {
	_, err := NewBuffer(0, NewEventChannel())
	assert.Error(t, err)

	_, err = NewBuffer(16, nil)
	assert.Error(t, err)
}

func TestBuffer_HalfFilledThenFull(t *testing.T) {
	buf := newTestBuffer(t, 4)
	events := buf.Events()

	// Three bytes do not complete a half
	assert.Equal(t, 3, buf.Write([]byte{1, 2, 3}))
	assert.Equal(t, EventNone, events.Flush())

	assert.Equal(t, 1, buf.Write([]byte{4}))
	ev := events.Flush()
	require.Equal(t, EventHalfFilled, ev)

	lease, ok := buf.Acquire(ev)
	require.True(t, ok)
	assert.Equal(t, HalfA, lease.Half())
	assert.Equal(t, []byte{1, 2, 3, 4}, lease.Bytes())
	lease.Release()

	assert.Equal(t, 4, buf.Write([]byte{5, 6, 7, 8}))
	ev = events.Flush()
	require.Equal(t, EventFull, ev)

	lease, ok = buf.Acquire(ev)
	require.True(t, ok)
	assert.Equal(t, HalfB, lease.Half())
	assert.Equal(t, []byte{5, 6, 7, 8}, lease.Bytes())
	lease.Release()
	assert.Nil(t, lease.Bytes(), "released lease must not expose the half")
}

func TestBuffer_WriteSpanningBothHalves(t *testing.T) {
	buf := newTestBuffer(t, 4)

	// Six bytes complete half A and start half B
	assert.Equal(t, 6, buf.Write([]byte{1, 2, 3, 4, 5, 6}))
	ev := buf.Events().Flush()
	require.Equal(t, EventHalfFilled, ev)

	lease, ok := buf.Acquire(ev)
	require.True(t, ok)
	lease.Release()

	assert.Equal(t, 2, buf.Write([]byte{7, 8}))
	ev = buf.Events().Flush()
	require.Equal(t, EventFull, ev)

	lease, ok = buf.Acquire(ev)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6, 7, 8}, lease.Bytes())
	lease.Release()
}

func TestBuffer_OverwrittenEventReclaimsHalf(t *testing.T) {
	buf := newTestBuffer(t, 2)

	// Fill A and B without the consumer taking anything
	buf.Write([]byte{1, 2, 3, 4})

	// HalfFilled was overwritten by Full, so half A went back to the producer
	assert.Equal(t, uint64(1), buf.Stats().DroppedHalves)
	ev := buf.Events().Flush()
	assert.Equal(t, EventFull, ev)

	_, ok := buf.Acquire(EventHalfFilled)
	assert.False(t, ok, "reclaimed half must not be leasable")

	// Producer can wrap into half A immediately
	assert.Equal(t, 2, buf.Write([]byte{5, 6}))
	assert.Equal(t, uint64(0), buf.Stats().OverrunBytes)
}

func TestBuffer_ProducerNeverWritesLeasedHalf(t *testing.T) {
	buf := newTestBuffer(t, 2)

	buf.Write([]byte{1, 2})
	lease, ok := buf.Acquire(buf.Events().Flush())
	require.True(t, ok)

	// Fill B, then try to wrap into A while it is still leased
	assert.Equal(t, 2, buf.Write([]byte{3, 4}))
	assert.Equal(t, 0, buf.Write([]byte{9, 9}))
	assert.Equal(t, uint64(2), buf.Stats().OverrunBytes)
	assert.Equal(t, []byte{1, 2}, lease.Bytes(), "leased half must be untouched")

	lease.Release()
	assert.Equal(t, 2, buf.Write([]byte{5, 6}))
}

func TestBuffer_Discard(t *testing.T) {
	buf := newTestBuffer(t, 2)
	buf.Write([]byte{1, 2})

	assert.Equal(t, EventHalfFilled, buf.Discard())
	assert.Equal(t, EventNone, buf.Discard())
	assert.Equal(t, uint64(1), buf.Stats().DroppedHalves)

	// Half A is free again: filling B then A must not overrun
	assert.Equal(t, 4, buf.Write([]byte{3, 4, 5, 6}))
	assert.Equal(t, uint64(0), buf.Stats().OverrunBytes)
}

func TestBuffer_DiscardRestartsFillingHalf(t *testing.T) {
	buf := newTestBuffer(t, 4)

	// Half A handed off, half B holds two stale bytes
	assert.Equal(t, 6, buf.Write([]byte{9, 9, 9, 9, 9, 9}))
	assert.Equal(t, EventHalfFilled, buf.Discard())

	assert.Equal(t, 4, buf.Write([]byte{1, 2, 3, 4}))
	lease, ok := buf.Acquire(buf.Events().Flush())
	require.True(t, ok)
	assert.Equal(t, HalfB, lease.Half())
	assert.Equal(t, []byte{1, 2, 3, 4}, lease.Bytes())
	lease.Release()

	// The restart happens once
	assert.Equal(t, 2, buf.Write([]byte{5, 6}))
	assert.Equal(t, 2, buf.Write([]byte{7, 8}))
	lease, ok = buf.Acquire(buf.Events().Flush())
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6, 7, 8}, lease.Bytes())
	lease.Release()
}

func TestBuffer_AcquireRejectsNone(t *testing.T) {
	buf := newTestBuffer(t, 2)
	_, ok := buf.Acquire(EventNone)
	assert.False(t, ok)
}

func TestBuffer_HalvesDoNotAlias(t *testing.T) {
	buf := newTestBuffer(t, 3)
	buf.Write(bytes.Repeat([]byte{0xAA}, 3))
	lease, ok := buf.Acquire(buf.Events().Flush())
	require.True(t, ok)

	// Appending to a leased slice must not spill into half B
	extended := append(lease.Bytes(), 0xFF)
	assert.Len(t, extended, 4)
	lease.Release()

	buf.Write([]byte{1, 2, 3})
	lease, ok = buf.Acquire(buf.Events().Flush())
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, lease.Bytes())
	lease.Release()
}
