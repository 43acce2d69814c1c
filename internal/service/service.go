package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/wavrecorder/internal/audio"
	"github.com/audiolibrelab/wavrecorder/internal/config"
	"github.com/audiolibrelab/wavrecorder/internal/recorder"
	"github.com/audiolibrelab/wavrecorder/internal/store"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

// DefaultHousekeepingInterval is how often Run checks for a failed session
const DefaultHousekeepingInterval = 500 * time.Millisecond

// ErrInvalidName is returned for recording names that are not a plain file name
var ErrInvalidName = errors.New("invalid recording name")

// Service represents the core recording service used by the CLI and the HTTP server
type Service interface {
	// Recording operations
	StartRecording(name string) error
	PauseRecording() error
	ResumeRecording() error
	StopRecording() error
	GetRecordingStatus() (recorder.State, *recorder.SessionInfo)

	// Information operations
	ListRecordings() ([]RecordingInfo, error)
	GetFileInfo(name string) (*FileInfo, error)
	GetConfig() *config.Config
	GetLastError() string

	// Lifecycle
	Run(ctx context.Context) error
	Close() error
}

// RecordingInfo describes a WAV file in the recordings directory
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	InfoURL      string    `json:"info_url"`
}

// FileInfo is the header of a recording plus what a full decode reports
type FileInfo struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Header     wav.Header `json:"header"`
	Duration   uint32     `json:"duration_seconds"`
	Probe      *wav.Info  `json:"probe,omitempty"`
	ProbeError string     `json:"probe_error,omitempty"`
	Peak       float64    `json:"peak"`
}

// Option configures a WavRecorderService
type Option func(*WavRecorderService)

// WithSource replaces the sample source selected from configuration
func WithSource(src recorder.SampleSource) Option {
	return func(s *WavRecorderService) { s.src = src }
}

// WithStore replaces the operating system file store
func WithStore(fs store.FileStore) Option {
	return func(s *WavRecorderService) { s.fs = fs }
}

// WithLogger sets the logger used by the service and its recorder
func WithLogger(logger *slog.Logger) Option {
	return func(s *WavRecorderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics exports recorder metrics
func WithMetrics(m *recorder.Metrics) Option {
	return func(s *WavRecorderService) { s.metrics = m }
}

// WithHousekeepingInterval sets how often Run looks for a failed session
func WithHousekeepingInterval(d time.Duration) Option {
	return func(s *WavRecorderService) {
		if d > 0 {
			s.housekeeping = d
		}
	}
}

// WavRecorderService is the main service implementation
type WavRecorderService struct {
	cfg          *config.Config
	src          recorder.SampleSource
	fs           store.FileStore
	rec          *recorder.Recorder
	logger       *slog.Logger
	metrics      *recorder.Metrics
	housekeeping time.Duration

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service. Unless overridden by options it captures from
// the backend named in cfg and writes to the operating system filesystem.
func New(cfg *config.Config, opts ...Option) (*WavRecorderService, error) {
	s := &WavRecorderService{
		cfg:          cfg,
		logger:       slog.Default(),
		housekeeping: DefaultHousekeepingInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.src == nil {
		src, err := audio.NewSource(cfg, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sample source: %w", err)
		}
		s.src = src
	}
	if s.fs == nil {
		s.fs = store.NewOS()
	}

	s.rec = recorder.New(s.src, s.fs,
		recorder.WithLogger(s.logger),
		recorder.WithMetrics(s.metrics),
		recorder.WithHalfBuffer(cfg.HalfBuffer()),
		recorder.WithStopTimeout(cfg.StopTimeout()),
		recorder.WithByteWisePatch(cfg.Capture.BytewisePatch),
	)
	return s, nil
}

// Recorder exposes the underlying recorder
func (s *WavRecorderService) Recorder() *recorder.Recorder {
	return s.rec
}

// StartRecording starts a new session writing <name>_<timestamp>.wav in the output directory
func (s *WavRecorderService) StartRecording(name string) error {
	s.logger.Debug("Service.StartRecording called", "name", name)
	s.clearLastError()

	if err := s.fs.MkdirAll(s.cfg.Output.Directory); err != nil {
		s.setLastError(fmt.Sprintf("Failed to create output directory: %v", err))
		return err
	}

	path := filepath.Join(s.cfg.Output.Directory, sessionFileName(name, time.Now()))
	format := s.cfg.Format()
	err := s.rec.Start(recorder.Config{
		Path:          path,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
		Channels:      format.Channels,
	})
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	return nil
}

// PauseRecording pauses the active session
func (s *WavRecorderService) PauseRecording() error {
	if err := s.rec.Pause(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to pause recording: %v", err))
		return err
	}
	return nil
}

// ResumeRecording resumes a paused session
func (s *WavRecorderService) ResumeRecording() error {
	if err := s.rec.Resume(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to resume recording: %v", err))
		return err
	}
	return nil
}

// StopRecording stops the current recording session
func (s *WavRecorderService) StopRecording() error {
	err := s.rec.Stop()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
	} else {
		s.clearLastError()
	}
	return err
}

// GetRecordingStatus returns the current state and the active or last session
func (s *WavRecorderService) GetRecordingStatus() (recorder.State, *recorder.SessionInfo) {
	info, ok := s.rec.Session()
	state := s.rec.State()
	if !ok {
		return state, nil
	}
	return state, &info
}

// ListRecordings returns the WAV files in the output directory, newest first
func (s *WavRecorderService) ListRecordings() ([]RecordingInfo, error) {
	entries, err := s.fs.List(s.cfg.Output.Directory, ".wav")
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	recordings := make([]RecordingInfo, 0, len(entries))
	for _, e := range entries {
		recordings = append(recordings, RecordingInfo{
			Name:         e.Name,
			Path:         e.Path,
			Size:         e.Size,
			SizeHuman:    formatBytes(e.Size),
			ModTime:      e.ModTime,
			ModTimeHuman: e.ModTime.Format("2006-01-02 15:04:05"),
			InfoURL:      fmt.Sprintf("/api/files/info/%s", e.Name),
		})
	}
	return recordings, nil
}

// GetFileInfo validates the header of a recording and decodes it for the
// probe results. A header-only file has no probe results.
func (s *WavRecorderService) GetFileInfo(name string) (*FileInfo, error) {
	path, err := s.recordingPath(name)
	if err != nil {
		return nil, err
	}

	h, err := s.rec.FileInfo(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{Name: name, Path: path, Header: h}
	if rate := h.ByteRate; rate > 0 && h.DataSize > 0 {
		info.Duration = uint32((uint64(wav.HeaderSize) + uint64(h.DataSize)) / uint64(rate))
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	probe, err := wav.Probe(f)
	if err != nil {
		info.ProbeError = err.Error()
		return info, nil
	}
	info.Probe = &probe

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if buf, err := wav.ReadPCM(f); err == nil {
			info.Peak = wav.Peak(buf)
		} else {
			s.logger.Debug("Failed to decode samples", "file", name, "error", err)
		}
	}
	return info, nil
}

// GetConfig returns the current configuration
func (s *WavRecorderService) GetConfig() *config.Config {
	return s.cfg
}

// Run performs housekeeping until ctx is done: a session that failed while
// nobody was calling the recorder is cleaned up without user action.
func (s *WavRecorderService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.housekeeping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.processFailedSession()
		}
	}
}

func (s *WavRecorderService) processFailedSession() {
	// Session observes pending faults, so this also notices a fresh failure
	if _, ok := s.rec.Session(); !ok || s.rec.State() != recorder.StateError {
		return
	}

	cause := s.rec.LastError()
	err := s.rec.Process()
	switch {
	case err != nil:
		s.setLastError(fmt.Sprintf("Recording failed and cleanup failed: %v", err))
	case cause != nil:
		s.setLastError(fmt.Sprintf("Recording failed: %v", cause))
	}
}

// Close stops any active session and releases the sample source
func (s *WavRecorderService) Close() error {
	return s.rec.Deinit()
}

func (s *WavRecorderService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *WavRecorderService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	s.logger.Error("Service error occurred", "error_message", err)
}

func (s *WavRecorderService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// recordingPath resolves name inside the output directory
func (s *WavRecorderService) recordingPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		return "", fmt.Errorf("%w: %q is not a .wav file", ErrInvalidName, name)
	}
	return filepath.Join(s.cfg.Output.Directory, name), nil
}

// Helper functions

// sessionFileName builds the file name of a new session
func sessionFileName(name string, at time.Time) string {
	clean := cleanFileName(name)
	if clean == "" {
		clean = "recording"
	}
	return fmt.Sprintf("%s_%s.wav", clean, at.Format("20060102-150405"))
}

func cleanFileName(name string) string {
	// Remove special characters and replace spaces with underscores
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
