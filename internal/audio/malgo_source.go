package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

// ErrDeviceStopped is reported to the sink when the device stops on its own
var ErrDeviceStopped = errors.New("capture device stopped unexpectedly")

// miniaudio limits
const (
	minSampleRate = 8000
	maxSampleRate = 384000
	maxChannels   = 254
)

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

// MalgoSource captures from a miniaudio device
type MalgoSource struct {
	device string
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	running atomic.Bool
}

// NewMalgoSource creates a source for the named device; empty selects the default
func NewMalgoSource(device string, logger *slog.Logger) *MalgoSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSource{device: device, logger: logger}
}

// Init allocates the miniaudio context
func (s *MalgoSource) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *MalgoSource) initLocked() error {
	if s.ctx != nil {
		return nil
	}

	ctx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, func(msg string) {
		s.logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context on %s: %w", runtime.GOOS, err)
	}
	s.ctx = ctx
	return nil
}

// Close releases the miniaudio context
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.stopLocked()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	return err
}

// Supports reports whether miniaudio can capture f
func (s *MalgoSource) Supports(f capture.Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, err := sampleFormat(f.BitsPerSample); err != nil {
		return err
	}
	if f.SampleRate < minSampleRate || f.SampleRate > maxSampleRate {
		return fmt.Errorf("sample rate %d outside device range %d-%d", f.SampleRate, minSampleRate, maxSampleRate)
	}
	if f.Channels > maxChannels {
		return fmt.Errorf("channel count %d exceeds device maximum %d", f.Channels, maxChannels)
	}
	return nil
}

// Start opens the device and delivers captured frames to sink
func (s *MalgoSource) Start(f capture.Format, sink capture.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return fmt.Errorf("capture device already running")
	}
	if err := s.Supports(f); err != nil {
		return err
	}
	if err := s.initLocked(); err != nil {
		return err
	}

	format, _ := sampleFormat(f.BitsPerSample)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(f.Channels)
	deviceConfig.SampleRate = uint32(f.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if s.device != "" && s.device != "default" {
		info, err := s.findDevice(s.device)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	frameSize := f.BlockAlign()
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			n := int(frames) * frameSize
			if n > len(input) {
				n = len(input)
			}
			sink.Write(input[:n])
		},
		Stop: func() {
			// Also fired by our own Stop, which clears running first
			if s.running.Load() {
				sink.Fault(ErrDeviceStopped)
			}
		},
	}

	dev, err := malgo.InitDevice(s.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	s.running.Store(true)
	if err := dev.Start(); err != nil {
		s.running.Store(false)
		dev.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	s.dev = dev

	s.logger.Info("Capture device started", "device", s.deviceName(), "format", f.String())
	return nil
}

// Stop halts the device. miniaudio returns from Stop only after the data
// callback has finished, so the sink sees no calls afterwards.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *MalgoSource) stopLocked() error {
	if s.dev == nil {
		return nil
	}
	s.running.Store(false)
	err := s.dev.Stop()
	s.dev.Uninit()
	s.dev = nil
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	s.logger.Debug("Capture device stopped", "device", s.deviceName())
	return nil
}

// ListDevices returns the capture devices miniaudio can see
func (s *MalgoSource) ListDevices() ([]DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initLocked(); err != nil {
		return nil, err
	}
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Name:    infos[i].Name(),
			ID:      infos[i].ID.String(),
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

func (s *MalgoSource) findDevice(name string) (*malgo.DeviceInfo, error) {
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	names := make([]string, len(infos))
	for i := range infos {
		names[i] = infos[i].Name()
	}
	i, ok := matchDevice(names, name)
	if !ok {
		return nil, fmt.Errorf("capture device not found: %s", name)
	}
	return &infos[i], nil
}

func (s *MalgoSource) deviceName() string {
	if s.device == "" {
		return "default"
	}
	return s.device
}

// sampleFormat maps a WAV bit depth to the matching miniaudio sample format
func sampleFormat(bits int) (malgo.FormatType, error) {
	switch bits {
	case 8:
		return malgo.FormatU8, nil
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("unsupported bit depth: %d", bits)
}

func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}
