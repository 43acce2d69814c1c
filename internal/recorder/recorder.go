// Package recorder owns the capture lifecycle: it starts the sample source,
// runs the consumer that appends PCM to the file and finalizes the WAV header
// once the real byte count is known.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
	"github.com/audiolibrelab/wavrecorder/internal/store"
	"github.com/audiolibrelab/wavrecorder/internal/wav"
)

// Recorder is the state machine driving one capture session at a time.
// All methods are safe for concurrent use.
type Recorder struct {
	src SampleSource
	fs  store.FileStore

	logger      *slog.Logger
	metrics     *Metrics
	halfBuffer  time.Duration
	stopTimeout time.Duration
	byteWise    bool

	mu          sync.Mutex
	state       atomic.Int32
	initialized bool
	session     *session
	last        *SessionInfo
	lastErr     error

	// the source of a finished session refused to stop
	sourceLeftRunning bool
}

// session is the live state between Start and the end of finalize
type session struct {
	id        string
	cfg       Config
	format    capture.Format
	startTime time.Time

	file     store.File
	finalize wav.Finalizer
	buf      *capture.Buffer
	consumer *capture.Consumer

	faults          chan error
	sourceStopped   bool
	consumerStopped bool
}

// report forwards a fault to the controller without blocking. Only the
// first faults are kept; the session is in Error after the first anyway.
func (s *session) report(err error) {
	select {
	case s.faults <- err:
	default:
	}
}

// New creates a stopped recorder capturing from src into files of fs
func New(src SampleSource, fs store.FileStore, opts ...Option) *Recorder {
	r := &Recorder{
		src:         src,
		fs:          fs,
		logger:      slog.Default(),
		halfBuffer:  DefaultHalfBuffer,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recorder")
	r.metrics.setState(StateStopped)
	return r
}

// State returns the current state without waiting for a running operation
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// setState must be called with mu held
func (r *Recorder) setState(s State) {
	r.state.Store(int32(s))
	r.metrics.setState(s)
}

// Init prepares the sample source. It is idempotent and called by Start if needed.
func (r *Recorder) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init()
}

func (r *Recorder) init() error {
	if r.initialized {
		return nil
	}
	if i, ok := r.src.(Initializer); ok {
		if err := i.Init(); err != nil {
			return newError("init", ErrHW, err)
		}
	}
	r.initialized = true
	r.logger.Debug("recorder initialized")
	return nil
}

// Start opens cfg.Path, writes a placeholder header and begins capture
func (r *Recorder) Start(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if st := r.State(); st != StateStopped {
		return newError("start", ErrInvalidState, fmt.Errorf("can only start from stopped state, current: %s", st))
	}
	if err := r.init(); err != nil {
		return err
	}

	format := cfg.Format()
	if err := format.Validate(); err != nil {
		return newError("start", ErrFormatNotSupported, err)
	}
	if err := r.src.Supports(format); err != nil {
		return newError("start", ErrFormatNotSupported, err)
	}
	if cfg.Path == "" {
		return newError("start", ErrIO, errors.New("output path is required"))
	}
	if err := r.stopLeftoverSource(); err != nil {
		return newError("start", ErrHW, err)
	}

	file, err := r.fs.Create(cfg.Path)
	if err != nil {
		return newError("start", ErrIO, err)
	}

	var wavOpts []wav.Option
	if r.byteWise {
		wavOpts = append(wavOpts, wav.ByteWise())
	}
	finalize, err := wav.WritePlaceholder(file, format, wavOpts...)
	if err != nil {
		r.discardFile(file, cfg.Path)
		return newError("start", ErrIO, err)
	}

	halfSize := format.HalfSizeFor(int(r.halfBuffer.Milliseconds()))
	buf, err := capture.NewBuffer(halfSize, capture.NewEventChannel())
	if err != nil {
		r.discardFile(file, cfg.Path)
		return newError("start", ErrIO, err)
	}

	s := &session{
		id:        uuid.NewString(),
		cfg:       cfg,
		format:    format,
		startTime: time.Now(),
		file:      file,
		finalize:  finalize,
		buf:       buf,
		faults:    make(chan error, 2),
	}
	logger := r.logger.With("session", s.id)
	s.consumer = capture.NewConsumer(buf, file, func(err error) {
		s.report(newError("write", ErrIO, err))
	}, logger)
	s.consumer.Start()

	sink := capture.NewSink(buf, func(err error) {
		s.report(newError("capture", ErrHW, err))
	})
	if err := r.src.Start(format, sink); err != nil {
		if stopErr := s.consumer.Stop(r.stopTimeout); stopErr != nil {
			logger.Warn("consumer did not stop after failed start", "error", stopErr)
		}
		r.discardFile(file, cfg.Path)
		return newError("start", ErrHW, err)
	}

	r.session = s
	r.last = nil
	r.lastErr = nil
	r.setState(StateRecording)
	r.metrics.sessionStarted()

	logger.Info("recording started", "path", cfg.Path, "format", format.String(), "half_size", halfSize)
	return nil
}

// discardFile closes and removes a file that never held a session
func (r *Recorder) discardFile(file store.File, path string) {
	if err := file.Close(); err != nil {
		r.logger.Warn("failed to close discarded file", "path", path, "error", err)
	}
	if err := r.fs.Remove(path); err != nil {
		r.logger.Warn("failed to remove discarded file", "path", path, "error", err)
	}
}

// Pause suspends the consumer. The source keeps running; what it captures
// while paused is dropped by Resume.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if st := r.State(); st != StateRecording {
		return newError("pause", ErrInvalidState, fmt.Errorf("can only pause from recording state, current: %s", st))
	}

	s := r.session
	if err := s.consumer.Suspend(r.stopTimeout); err != nil {
		return newError("pause", ErrIO, err)
	}

	r.setState(StatePaused)
	r.logger.Info("recording paused", "session", s.id, "recorded_bytes", s.consumer.Written())
	return nil
}

// Resume drops the audio buffered during the pause and resumes the consumer
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if st := r.State(); st != StatePaused {
		return newError("resume", ErrInvalidState, fmt.Errorf("can only resume from paused state, current: %s", st))
	}

	s := r.session
	if ev := s.buf.Discard(); ev != capture.EventNone {
		r.logger.Debug("discarded half captured while paused", "session", s.id, "event", ev)
	}
	if err := s.consumer.Resume(r.stopTimeout); err != nil {
		return newError("resume", ErrIO, err)
	}

	r.setState(StateRecording)
	r.logger.Info("recording resumed", "session", s.id)
	return nil
}

// Stop ends the session and finalizes the file. Stopping a stopped recorder
// succeeds without touching any file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if r.State() == StateStopped {
		return nil
	}
	return r.finish("stop")
}

// Process performs the cleanup of a session in the error state. It does
// nothing in any other state.
func (r *Recorder) Process() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if r.State() != StateError {
		return nil
	}
	r.logger.Info("cleaning up failed session")
	return r.finish("process")
}

// Deinit stops any active session with a best effort finalize and releases the source
func (r *Recorder) Deinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	var result error
	if r.State() != StateStopped {
		result = r.finish("deinit")
	}

	if err := r.stopLeftoverSource(); err != nil && result == nil {
		result = newError("deinit", ErrHW, err)
	}

	if !r.initialized {
		return result
	}
	if c, ok := r.src.(Closer); ok {
		if err := c.Close(); err != nil && result == nil {
			result = newError("deinit", ErrHW, err)
		}
	}
	r.initialized = false
	r.logger.Debug("recorder deinitialized")
	return result
}

// finish quiesces the consumer, stops the source, patches the header and
// closes the file. If the consumer cannot be quiesced the session stays
// in the error state and a later call retries. Must be called with mu held.
func (r *Recorder) finish(op string) error {
	s := r.session
	logger := r.logger.With("session", s.id)

	if !s.consumerStopped {
		if err := s.consumer.Stop(r.stopTimeout); err != nil {
			r.stopSource(s, logger)
			e := newError(op, ErrIO, err)
			r.enterError(e)
			logger.Error("consumer did not stop, file left open", "error", err)
			return e
		}
		s.consumerStopped = true
	}

	var result error
	if err := r.stopSource(s, logger); err != nil {
		result = newError(op, ErrHW, err)
		r.sourceLeftRunning = true
	}

	// The consumer has exited, so the file belongs to the controller now
	written := s.consumer.Written()
	if written > wav.MaxDataSize {
		result = newError(op, ErrIO, fmt.Errorf("recorded %d bytes, more than a WAV file can describe", written))
		written = wav.MaxDataSize
	}
	if err := s.finalize(uint32(written)); err != nil {
		result = newError(op, ErrIO, err)
		logger.Error("failed to finalize header", "error", err)
	}
	if err := s.file.Close(); err != nil {
		if result == nil || !errors.Is(result, ErrIO) {
			result = newError(op, ErrIO, err)
		}
		logger.Error("failed to close recording", "error", err)
	}

	stats := s.buf.Stats()
	r.metrics.sessionFinished(result, written, stats.DroppedHalves, stats.OverrunBytes)
	if result != nil {
		r.lastErr = result
	}
	info := r.snapshot(s, StateStopped)
	r.last = &info
	r.session = nil
	r.setState(StateStopped)

	logger.Info("recording finalized",
		"path", s.cfg.Path,
		"data_bytes", written,
		"duration", r.durationOf(s.format, written),
		"dropped_halves", stats.DroppedHalves,
		"overrun_bytes", stats.OverrunBytes)
	return result
}

func (r *Recorder) stopSource(s *session, logger *slog.Logger) error {
	if s.sourceStopped {
		return nil
	}
	if err := r.src.Stop(); err != nil {
		logger.Warn("failed to stop sample source", "error", err)
		return err
	}
	s.sourceStopped = true
	return nil
}

// stopLeftoverSource retries stopping a source that failed to stop when its
// session was finalized. Must be called with mu held.
func (r *Recorder) stopLeftoverSource() error {
	if !r.sourceLeftRunning {
		return nil
	}
	if err := r.src.Stop(); err != nil {
		r.logger.Warn("sample source still failing to stop", "error", err)
		return fmt.Errorf("sample source from the previous session is still running: %w", err)
	}
	r.sourceLeftRunning = false
	r.logger.Info("sample source of the previous session stopped")
	return nil
}

// observeFault moves an active session to the error state if a fault was
// reported since the last call. Must be called with mu held.
func (r *Recorder) observeFault() {
	s := r.session
	if s == nil {
		return
	}
	if st := r.State(); st != StateRecording && st != StatePaused {
		return
	}
	select {
	case err := <-s.faults:
		r.enterError(err)
		r.logger.Error("session failed", "session", s.id, "error", err)
	default:
	}
}

func (r *Recorder) enterError(err error) {
	r.lastErr = err
	r.metrics.fault(KindOf(err))
	r.setState(StateError)
}

// Duration returns the whole seconds of audio recorded, header included,
// for the active or last session. It is zero in the error state and before
// any audio was appended.
func (r *Recorder) Duration() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.State() == StateError:
		return 0
	case r.session != nil:
		return r.durationOf(r.session.format, r.session.consumer.Written())
	case r.last != nil:
		return r.last.Duration
	default:
		return 0
	}
}

func (r *Recorder) durationOf(f capture.Format, dataBytes uint64) uint32 {
	if dataBytes == 0 || f.ByteRate() == 0 {
		return 0
	}
	return uint32((wav.HeaderSize + dataBytes) / uint64(f.ByteRate()))
}

// RecordedBytes returns the PCM bytes appended to the active or last session
func (r *Recorder) RecordedBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return r.session.consumer.Written()
	}
	if r.last != nil {
		return r.last.RecordedBytes
	}
	return 0
}

// Session returns a copy of the active session, or of the last one if the
// recorder is stopped. It reports false if there was never a session.
func (r *Recorder) Session() (SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()

	if r.session != nil {
		return r.snapshot(r.session, r.State()), true
	}
	if r.last != nil {
		return *r.last, true
	}
	return SessionInfo{}, false
}

// LastError returns the error that ended or broke the latest session
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observeFault()
	return r.lastErr
}

func (r *Recorder) snapshot(s *session, st State) SessionInfo {
	written := s.consumer.Written()
	stats := s.buf.Stats()
	info := SessionInfo{
		ID:            s.id,
		Path:          s.cfg.Path,
		Format:        s.format,
		StartTime:     s.startTime,
		State:         st,
		RecordedBytes: written,
		Duration:      r.durationOf(s.format, written),
		DroppedHalves: stats.DroppedHalves,
		OverrunBytes:  stats.OverrunBytes,
	}
	if r.lastErr != nil {
		info.LastError = r.lastErr.Error()
	}
	return info
}

// FileInfo reads back and validates the header of a recording
func (r *Recorder) FileInfo(path string) (wav.Header, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return wav.Header{}, newError("file info", ErrIO, err)
	}
	defer f.Close()

	h, err := wav.ReadHeader(f)
	if err != nil {
		return wav.Header{}, newError("file info", ErrIO, err)
	}
	return h, nil
}
