package recorder

import (
	"time"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

// State represents the current state of the recorder
type State int32

const (
	StateStopped State = iota
	StateRecording
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRecording:
		return "RECORDING"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON and YAML
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config is what a session is started with
type Config struct {
	Path          string `json:"path"`
	SampleRate    int    `json:"sample_rate"`
	BitsPerSample int    `json:"bits_per_sample"`
	Channels      int    `json:"channels"`
}

// Format returns the PCM format requested by c
func (c Config) Format() capture.Format {
	return capture.Format{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		BitsPerSample: c.BitsPerSample,
	}
}

// SessionInfo contains information about the current or last recording session
type SessionInfo struct {
	ID            string         `json:"id"`
	Path          string         `json:"path"`
	Format        capture.Format `json:"format"`
	StartTime     time.Time      `json:"start_time"`
	State         State          `json:"state"`
	RecordedBytes uint64         `json:"recorded_bytes"`
	Duration      uint32         `json:"duration_seconds"`
	DroppedHalves uint64         `json:"dropped_halves"`
	OverrunBytes  uint64         `json:"overrun_bytes"`
	LastError     string         `json:"last_error,omitempty"`
}
