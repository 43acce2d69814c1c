package audio

import (
	"fmt"
	"strings"
	"testing"

	"github.com/audiolibrelab/wavrecorder/internal/config"
)

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		backend  string
		expected BackendType
	}{
		{"", BackendTypeMalgo},
		{"auto", BackendTypeMalgo},
		{"malgo", BackendTypeMalgo},
		{"MALGO", BackendTypeMalgo},
		{"synthetic", BackendTypeSynthetic},
		{"jack", BackendType("jack")},
	}

	for _, test := range tests {
		cfg := config.Default()
		cfg.Audio.Backend = test.backend
		if got := determineBackend(cfg); got != test.expected {
			t.Errorf("determineBackend(%q) = %s, expected %s", test.backend, got, test.expected)
		}
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "jack"

	_, err := NewBackend(cfg)
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "unknown audio backend: jack") {
		t.Errorf("Expected 'unknown audio backend' error, got: %v", err)
	}
}

func TestNewSource_Synthetic(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "synthetic"
	cfg.Audio.ToneHz = 1000

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	synth, ok := src.(*SyntheticSource)
	if !ok {
		t.Fatalf("Expected *SyntheticSource, got %T", src)
	}
	if synth.toneHz != 1000 {
		t.Errorf("Expected tone 1000 Hz, got %.1f", synth.toneHz)
	}
}

func TestSyntheticBackend(t *testing.T) {
	b := &SyntheticBackend{}

	sources, err := b.ListSources()
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != 1 || sources[0] != syntheticDeviceName {
		t.Errorf("Expected [%s], got %v", syntheticDeviceName, sources)
	}
	if err := b.ValidateSource("anything"); err != nil {
		t.Errorf("Expected any device to validate, got: %v", err)
	}
	if b.GetType() != BackendTypeSynthetic {
		t.Errorf("Expected synthetic type, got %s", b.GetType())
	}
}

func TestMatchDevice(t *testing.T) {
	devices := []string{
		"USB Audio Device, USB Audio",
		"USB Audio",
		"HDA Intel PCH, ALC892 Analog",
	}

	tests := []struct {
		name     string
		source   string
		expected int
		found    bool
	}{
		{"exact match wins over substring", "USB Audio", 1, true},
		{"substring match", "ALC892", 2, true},
		{"first substring match", "USB", 0, true},
		{"not found", "Focusrite", -1, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			i, ok := matchDevice(devices, test.source)
			if i != test.expected || ok != test.found {
				t.Errorf("matchDevice(%q) = (%d, %v), expected (%d, %v)", test.source, i, ok, test.expected, test.found)
			}
		})
	}
}

func TestGetAvailableBackends(t *testing.T) {
	backends := GetAvailableBackends()
	if len(backends) != 2 {
		t.Fatalf("Expected 2 backends, got %v", backends)
	}
	if backends[0] != BackendTypeMalgo || backends[1] != BackendTypeSynthetic {
		t.Errorf("Unexpected backends: %v", backends)
	}
}

// deviceBackend is a backend with a fixed device list
type deviceBackend struct {
	SyntheticBackend
	devices []string
}

func (b *deviceBackend) ListSources() ([]string, error) {
	return b.devices, nil
}

func (b *deviceBackend) ValidateSource(source string) error {
	if _, ok := matchDevice(b.devices, source); !ok {
		return fmt.Errorf("capture device not found: %s", source)
	}
	return nil
}

func TestNewSource_ValidatesDevice(t *testing.T) {
	backend := &deviceBackend{devices: []string{"USB Audio CODEC", "Built-in Microphone"}}
	cfg := config.Default()

	cfg.Audio.Device = "USB Audio"
	if _, err := newSource(backend, cfg, nil); err != nil {
		t.Errorf("Expected configured device to validate, got: %v", err)
	}

	cfg.Audio.Device = "Scarlett 2i2"
	_, err := newSource(backend, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing capture device")
	}
	if !strings.Contains(err.Error(), "capture device not found: Scarlett 2i2") {
		t.Errorf("Expected 'capture device not found' error, got: %v", err)
	}
}

func TestBackendFor(t *testing.T) {
	for _, bt := range GetAvailableBackends() {
		b, err := BackendFor(bt)
		if err != nil {
			t.Errorf("BackendFor(%s) failed: %v", bt, err)
			continue
		}
		if b.GetType() != bt {
			t.Errorf("BackendFor(%s) returned %s backend", bt, b.GetType())
		}
	}
	if b, err := BackendFor(BackendTypeAuto); err != nil || b.GetType() != BackendTypeMalgo {
		t.Errorf("Expected auto to select malgo, got %v, %v", b, err)
	}
	if _, err := BackendFor("jack"); err == nil {
		t.Error("Expected error for unknown backend type")
	}
}
