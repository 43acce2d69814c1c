package play

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
	"github.com/audiolibrelab/wavrecorder/internal/config"
	"github.com/audiolibrelab/wavrecorder/internal/store"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

func newTestPlayer(t *testing.T) (*Player, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Output.Directory = "/rec"
	return New(cfg, store.New(fs)), fs
}

// writeRecording writes a finalized WAV file with dataBytes of silence
func writeRecording(t *testing.T, fs afero.Fs, path string, dataBytes int, mod time.Time) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	finalize, err := wav.WritePlaceholder(f, capture.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16})
	if err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	if _, err := f.Write(make([]byte, dataBytes)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := finalize(uint32(dataBytes)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	f.Close()
	if err := fs.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestResolve(t *testing.T) {
	p, fs := newTestPlayer(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writeRecording(t, fs, "/rec/Band_Practice_20240501-120000.wav", 32, base)
	writeRecording(t, fs, "/rec/Band_Practice_20240502-120000.wav", 32, base.Add(24*time.Hour))
	writeRecording(t, fs, "/rec/solo_20240501-130000.wav", 32, base.Add(time.Hour))

	tests := []struct {
		name     string
		expected string
	}{
		{"Band Practice", "/rec/Band_Practice_20240502-120000.wav"},
		{"Band_Practice_20240501-120000.wav", "/rec/Band_Practice_20240501-120000.wav"},
		{"Band_Practice_20240501-120000", "/rec/Band_Practice_20240501-120000.wav"},
		{"solo", "/rec/solo_20240501-130000.wav"},
	}

	for _, test := range tests {
		got, err := p.Resolve(test.name)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", test.name, err)
			continue
		}
		if got != test.expected {
			t.Errorf("Resolve(%q) = %s, expected %s", test.name, got, test.expected)
		}
	}

	if _, err := p.Resolve("duet"); err == nil {
		t.Error("Expected error for unknown recording")
	}
}

func TestPlay(t *testing.T) {
	p, fs := newTestPlayer(t)
	writeRecording(t, fs, "/rec/take_20240501-120000.wav", 64, time.Now())

	var ran []string
	p.lookPath = func(name string) (string, error) {
		if name == "mpv" {
			return "/usr/bin/mpv", nil
		}
		return "", exec.ErrNotFound
	}
	p.run = func(cmd *exec.Cmd) error {
		ran = cmd.Args
		return nil
	}

	if err := p.Play("take"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	expected := "mpv --no-video /rec/take_20240501-120000.wav"
	if strings.Join(ran, " ") != expected {
		t.Errorf("Expected command %q, got %q", expected, strings.Join(ran, " "))
	}
}

func TestPlay_Errors(t *testing.T) {
	p, fs := newTestPlayer(t)
	writeRecording(t, fs, "/rec/empty_20240501-120000.wav", 0, time.Now())
	if err := afero.WriteFile(fs, "/rec/broken_20240501-120000.wav", []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeRecording(t, fs, "/rec/ok_20240501-120000.wav", 64, time.Now())

	p.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	p.run = func(*exec.Cmd) error { return errors.New("player crashed") }

	tests := []struct {
		name        string
		expectedErr string
	}{
		{"empty", "holds no audio"},
		{"broken", "invalid WAV header"},
		{"ok", "no suitable audio player found"},
		{"missing", "no recording named"},
	}

	for _, test := range tests {
		err := p.Play(test.name)
		if err == nil || !strings.Contains(err.Error(), test.expectedErr) {
			t.Errorf("Play(%q) error = %v, expected '%s'", test.name, err, test.expectedErr)
		}
	}

	p.lookPath = func(string) (string, error) { return "/usr/bin/aplay", nil }
	if err := p.Play("ok"); err == nil || !strings.Contains(err.Error(), "playback failed with aplay") {
		t.Errorf("Expected playback failure, got %v", err)
	}
}

func TestPlayerCommand(t *testing.T) {
	tests := map[string]string{
		"aplay":  "aplay f.wav",
		"ffplay": "ffplay -nodisp -autoexit f.wav",
		"mpv":    "mpv --no-video f.wav",
		"vlc":    "vlc --play-and-exit f.wav",
	}
	for player, expected := range tests {
		if got := strings.Join(playerCommand(player, "f.wav").Args, " "); got != expected {
			t.Errorf("playerCommand(%s) = %q, expected %q", player, got, expected)
		}
	}
}
