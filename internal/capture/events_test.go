package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventChannel_PostNeverBlocks(t *testing.T) {
	ch := NewEventChannel()

	assert.Equal(t, EventNone, ch.Post(EventHalfFilled))
	// Slot occupied: the older event is handed back
	assert.Equal(t, EventHalfFilled, ch.Post(EventFull))
	assert.Equal(t, EventFull, ch.Post(EventHalfFilled))

	assert.Equal(t, EventHalfFilled, ch.Flush())
	assert.Equal(t, EventNone, ch.Flush())
}

func TestEventChannel_C(t *testing.T) {
	ch := NewEventChannel()

	select {
	case ev := <-ch.C():
		t.Fatalf("unexpected event %s on an empty channel", ev)
	default:
	}

	ch.Post(EventFull)
	select {
	case ev := <-ch.C():
		assert.Equal(t, EventFull, ev)
	case <-time.After(time.Second):
		t.Fatal("posted event not delivered")
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{EventNone, "none"},
		{EventHalfFilled, "half-filled"},
		{EventFull, "full"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.String())
		})
	}
}

func TestFormat_Validate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"cd quality", Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}, false},
		{"voice", Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, false},
		{"24 bit", Format{SampleRate: 48000, Channels: 2, BitsPerSample: 24}, false},
		{"zero rate", Format{SampleRate: 0, Channels: 1, BitsPerSample: 16}, true},
		{"zero channels", Format{SampleRate: 16000, Channels: 0, BitsPerSample: 16}, true},
		{"12 bit", Format{SampleRate: 16000, Channels: 1, BitsPerSample: 12}, true},
		{"64 bit", Format{SampleRate: 16000, Channels: 1, BitsPerSample: 64}, true},
		{"frame size over 16 bit", Format{SampleRate: 8000, Channels: 20000, BitsPerSample: 32}, true},
		{"byte rate over 32 bit", Format{SampleRate: 384000000, Channels: 16, BitsPerSample: 32}, true},
		{"largest frame", Format{SampleRate: 8000, Channels: 16383, BitsPerSample: 32}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormat_Derived(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	assert.Equal(t, 2, f.BlockAlign())
	assert.Equal(t, 32000, f.ByteRate())
	assert.Equal(t, 2048, f.HalfSizeFor(64))

	stereo := Format{SampleRate: 48000, Channels: 2, BitsPerSample: 24}
	assert.Equal(t, 6, stereo.BlockAlign())
	assert.Equal(t, 288000, stereo.ByteRate())
	assert.Equal(t, 6, stereo.HalfSizeFor(0))
}
