package play

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/wavrecorder/internal/config"
	"github.com/audiolibrelab/wavrecorder/internal/store"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

// preferred audio players, in order
var players = []string{"aplay", "ffplay", "mpv", "vlc"}

type Player struct {
	cfg      *config.Config
	fs       store.FileStore
	lookPath func(string) (string, error)
	run      func(*exec.Cmd) error
}

func New(cfg *config.Config, fs store.FileStore) *Player {
	return &Player{
		cfg:      cfg,
		fs:       fs,
		lookPath: exec.LookPath,
		run:      (*exec.Cmd).Run,
	}
}

// Play plays a recording with the first external player found
func (p *Player) Play(name string) error {
	audioFile, err := p.Resolve(name)
	if err != nil {
		return err
	}

	h, err := p.readHeader(audioFile)
	if err != nil {
		return err
	}
	if h.DataSize == 0 {
		return fmt.Errorf("recording %s holds no audio", filepath.Base(audioFile))
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	fmt.Printf("Playing: %s (%s)\n", audioFile, h.Format())
	slog.Debug("Starting playback", "player", player, "file", audioFile)

	if err := p.run(playerCommand(player, audioFile)); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	fmt.Println("Playback completed")
	return nil
}

// Resolve finds the file for name in the output directory: an exact file
// name, or else the newest session recorded under that name
func (p *Player) Resolve(name string) (string, error) {
	dir := p.cfg.Output.Directory
	entries, err := p.fs.List(dir, ".wav")
	if err != nil {
		return "", fmt.Errorf("failed to list recordings: %w", err)
	}

	for _, e := range entries {
		if e.Name == name || e.Name == name+".wav" {
			return e.Path, nil
		}
	}

	// Entries are newest first
	prefix := cleanFileName(name) + "_"
	for _, e := range entries {
		if strings.HasPrefix(e.Name, prefix) {
			return e.Path, nil
		}
	}

	return "", fmt.Errorf("no recording named %q in %s", name, dir)
}

func (p *Player) readHeader(path string) (wav.Header, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return wav.Header{}, err
	}
	defer f.Close()

	h, err := wav.ReadHeader(f)
	if err != nil {
		return wav.Header{}, fmt.Errorf("cannot play %s: %w", filepath.Base(path), err)
	}
	return h, nil
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerCommand(player, audioFile string) *exec.Cmd {
	switch player {
	case "ffplay":
		return exec.Command("ffplay", "-nodisp", "-autoexit", audioFile)
	case "mpv":
		return exec.Command("mpv", "--no-video", audioFile)
	case "vlc":
		return exec.Command("vlc", "--play-and-exit", audioFile)
	default:
		return exec.Command(player, audioFile)
	}
}

func cleanFileName(name string) string {
	// Remove special characters and replace spaces with underscores
	// Allows: letters, numbers, spaces, hyphens, underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}
