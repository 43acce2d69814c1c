package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

const (
	syntheticDeviceName = "synthetic tone"

	// DefaultToneHz is used when no tone frequency is configured
	DefaultToneHz = 440.0
	// DefaultSyntheticPeriod is how often the generator delivers a block
	DefaultSyntheticPeriod = 10 * time.Millisecond

	syntheticAmplitude = 0.5
)

// SyntheticSource generates a sine tone on a timer, standing in for hardware
// on machines without a capture device
type SyntheticSource struct {
	toneHz float64
	period time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSyntheticSource creates a tone generator at toneHz
func NewSyntheticSource(toneHz float64, logger *slog.Logger) *SyntheticSource {
	if toneHz <= 0 {
		toneHz = DefaultToneHz
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyntheticSource{toneHz: toneHz, period: DefaultSyntheticPeriod, logger: logger}
}

// Supports accepts every valid format
func (s *SyntheticSource) Supports(f capture.Format) error {
	return f.Validate()
}

// Start runs the generator until Stop
func (s *SyntheticSource) Start(f capture.Format, sink capture.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return fmt.Errorf("synthetic source already running")
	}
	if err := f.Validate(); err != nil {
		return err
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(f, sink, s.stop, s.done)

	s.logger.Info("Synthetic source started", "tone_hz", s.toneHz, "format", f.String())
	return nil
}

// Stop halts the generator and waits for its last block
func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return nil
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil

	s.logger.Debug("Synthetic source stopped")
	return nil
}

func (s *SyntheticSource) run(f capture.Format, sink capture.Sink, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	frames := int(int64(f.SampleRate) * int64(s.period) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	block := make([]byte, frames*f.BlockAlign())
	step := 2 * math.Pi * s.toneHz / float64(f.SampleRate)
	var phase float64

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			phase = fillTone(block, f, phase, step)
			sink.Write(block)
		}
	}
}

// fillTone writes whole frames of a sine starting at phase into block and
// returns the phase of the next frame
func fillTone(block []byte, f capture.Format, phase, step float64) float64 {
	width := f.BitsPerSample / 8
	frameSize := f.BlockAlign()

	for off := 0; off+frameSize <= len(block); off += frameSize {
		v := syntheticAmplitude * math.Sin(phase)
		for ch := 0; ch < f.Channels; ch++ {
			putSample(block[off+ch*width:], f.BitsPerSample, v)
		}
		phase += step
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return phase
}

// putSample encodes v in [-1, 1] as little-endian PCM; 8-bit samples are unsigned
func putSample(dst []byte, bits int, v float64) {
	switch bits {
	case 8:
		dst[0] = uint8(128 + int(math.Round(v*127)))
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(math.Round(v*math.MaxInt16))))
	case 24:
		s := int32(math.Round(v * (1<<23 - 1)))
		dst[0] = byte(s)
		dst[1] = byte(s >> 8)
		dst[2] = byte(s >> 16)
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(math.Round(v*math.MaxInt32))))
	}
}
