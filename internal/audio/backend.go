package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/wavrecorder/internal/config"
	"github.com/audiolibrelab/wavrecorder/internal/recorder"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMalgo     BackendType = "malgo"
	BackendTypeSynthetic BackendType = "synthetic"
	BackendTypeAuto      BackendType = "auto"
)

// AudioBackend defines the interface for audio backend implementations
type AudioBackend interface {
	// Create a new sample source for the configured device
	NewSource(cfg *config.Config, logger *slog.Logger) recorder.SampleSource

	// List available capture devices
	ListSources() ([]string, error)

	// Validate if a device is available
	ValidateSource(source string) error

	// Get the backend type
	GetType() BackendType
}

// NewSource creates a sample source using the backend selected by configuration
func NewSource(cfg *config.Config, logger *slog.Logger) (recorder.SampleSource, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return newSource(backend, cfg, logger)
}

func newSource(backend AudioBackend, cfg *config.Config, logger *slog.Logger) (recorder.SampleSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := backend.ValidateSource(cfg.Audio.Device); err != nil {
		return nil, fmt.Errorf("%s backend: %w", backend.GetType(), err)
	}
	logger.Debug("Selected audio backend", "backend", backend.GetType(), "device", cfg.Audio.Device)
	return backend.NewSource(cfg, logger), nil
}

// NewBackend returns the backend named by cfg.Audio.Backend
func NewBackend(cfg *config.Config) (AudioBackend, error) {
	backend, err := BackendFor(determineBackend(cfg))
	if err != nil {
		return nil, fmt.Errorf("unknown audio backend: %s", cfg.Audio.Backend)
	}
	return backend, nil
}

// BackendFor returns the backend of the given type
func BackendFor(t BackendType) (AudioBackend, error) {
	switch t {
	case BackendTypeMalgo, BackendTypeAuto:
		return &MalgoBackend{}, nil
	case BackendTypeSynthetic:
		return &SyntheticBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", t)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "", "auto", "malgo":
		// Hardware capture whenever the platform has one
		return BackendTypeMalgo
	case "synthetic":
		return BackendTypeSynthetic
	}
	return BackendType(cfg.Audio.Backend)
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo, BackendTypeSynthetic}
}

// MalgoBackend implements the AudioBackend interface for miniaudio devices
type MalgoBackend struct{}

// NewSource creates a new malgo capture source
func (b *MalgoBackend) NewSource(cfg *config.Config, logger *slog.Logger) recorder.SampleSource {
	return NewMalgoSource(cfg.Audio.Device, logger)
}

// ListSources returns the names of available capture devices
func (b *MalgoBackend) ListSources() ([]string, error) {
	src := NewMalgoSource("", slog.Default())
	if err := src.Init(); err != nil {
		return nil, err
	}
	defer src.Close()

	devices, err := src.ListDevices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}

// ValidateSource checks that a capture device matching source exists
func (b *MalgoBackend) ValidateSource(source string) error {
	if source == "" || source == "default" {
		return nil
	}

	names, err := b.ListSources()
	if err != nil {
		return fmt.Errorf("failed to list capture devices: %w", err)
	}
	if _, ok := matchDevice(names, source); !ok {
		return fmt.Errorf("capture device not found: %s", source)
	}
	return nil
}

// GetType returns the backend type
func (b *MalgoBackend) GetType() BackendType {
	return BackendTypeMalgo
}

// SyntheticBackend implements the AudioBackend interface with a generated tone
type SyntheticBackend struct{}

// NewSource creates a new tone generator
func (b *SyntheticBackend) NewSource(cfg *config.Config, logger *slog.Logger) recorder.SampleSource {
	return NewSyntheticSource(cfg.Audio.ToneHz, logger)
}

// ListSources returns the single synthetic device
func (b *SyntheticBackend) ListSources() ([]string, error) {
	return []string{syntheticDeviceName}, nil
}

// ValidateSource accepts any device name; the tone has no device
func (b *SyntheticBackend) ValidateSource(string) error {
	return nil
}

// GetType returns the backend type
func (b *SyntheticBackend) GetType() BackendType {
	return BackendTypeSynthetic
}

// matchDevice finds source in names by exact match first, then by substring
func matchDevice(names []string, source string) (int, bool) {
	for i, name := range names {
		if name == source {
			return i, true
		}
	}
	for i, name := range names {
		if strings.Contains(name, source) {
			return i, true
		}
	}
	return -1, false
}
