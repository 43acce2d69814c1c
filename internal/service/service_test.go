package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/audiolibrelab/wavrecorder/internal/audio"
	"github.com/audiolibrelab/wavrecorder/internal/capture"
	"github.com/audiolibrelab/wavrecorder/internal/config"
	"github.com/audiolibrelab/wavrecorder/internal/recorder"
	"github.com/audiolibrelab/wavrecorder/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// faultSource accepts every format and lets the test report a hardware fault
type faultSource struct {
	mu   sync.Mutex
	sink capture.Sink
}

func (f *faultSource) Supports(capture.Format) error { return nil }

func (f *faultSource) Start(_ capture.Format, sink capture.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
	return nil
}

func (f *faultSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = nil
	return nil
}

func (f *faultSource) fault(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink.Fault(err)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Backend = "synthetic"
	cfg.Capture.HalfBufferMs = 20
	cfg.Capture.StopTimeoutMs = 1000
	cfg.Output.Directory = "/recordings"
	return cfg
}

func newTestService(t *testing.T, opts ...Option) (*WavRecorderService, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	opts = append([]Option{WithStore(store.New(fs)), WithHousekeepingInterval(5 * time.Millisecond)}, opts...)
	svc, err := New(testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, fs
}

func TestRecordWithSyntheticSource(t *testing.T) {
	svc, fs := newTestService(t)

	require.NoError(t, svc.StartRecording("Morning Take #1"))
	state, session := svc.GetRecordingStatus()
	require.Equal(t, recorder.StateRecording, state)
	require.NotNil(t, session)
	assert.Regexp(t, `^/recordings/Morning_Take_1_\d{8}-\d{6}\.wav$`, session.Path)

	require.Eventually(t, func() bool {
		return svc.Recorder().RecordedBytes() >= 6400
	}, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.PauseRecording())
	require.NoError(t, svc.ResumeRecording())
	require.NoError(t, svc.StopRecording())

	state, session = svc.GetRecordingStatus()
	assert.Equal(t, recorder.StateStopped, state)
	assert.Empty(t, svc.GetLastError())

	recordings, err := svc.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.Equal(t, session.Path, recordings[0].Path)
	assert.Equal(t, int64(44)+int64(session.RecordedBytes), recordings[0].Size)
	assert.Equal(t, "/api/files/info/"+recordings[0].Name, recordings[0].InfoURL)

	info, err := svc.GetFileInfo(recordings[0].Name)
	require.NoError(t, err)
	assert.Equal(t, uint32(session.RecordedBytes), info.Header.DataSize)
	assert.Equal(t, uint16(16), info.Header.BitsPerSample)
	require.NotNil(t, info.Probe, "probe error: %s", info.ProbeError)
	assert.Equal(t, 16000, info.Probe.SampleRate)
	assert.Equal(t, int64(session.RecordedBytes)/2, info.Probe.Frames)
	assert.InDelta(t, 0.5, info.Peak, 0.01)

	exists, err := afero.Exists(fs, session.Path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInvalidTransitionsSetLastError(t *testing.T) {
	svc, _ := newTestService(t, WithSource(&faultSource{}))

	err := svc.PauseRecording()
	require.ErrorIs(t, err, recorder.ErrInvalidState)
	assert.Contains(t, svc.GetLastError(), "Failed to pause recording")

	err = svc.ResumeRecording()
	require.ErrorIs(t, err, recorder.ErrInvalidState)
	assert.Contains(t, svc.GetLastError(), "Failed to resume recording")

	// Stopping while stopped succeeds and clears the error
	require.NoError(t, svc.StopRecording())
	assert.Empty(t, svc.GetLastError())

	state, session := svc.GetRecordingStatus()
	assert.Equal(t, recorder.StateStopped, state)
	assert.Nil(t, session)
}

func TestHousekeepingCleansUpFailedSession(t *testing.T) {
	src := &faultSource{}
	svc, fs := newTestService(t, WithSource(src))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.NoError(t, svc.StartRecording("broken"))
	_, session := svc.GetRecordingStatus()
	require.NotNil(t, session)

	src.fault(errors.New("device unplugged"))

	require.Eventually(t, func() bool {
		state, _ := svc.GetRecordingStatus()
		return state == recorder.StateStopped
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, svc.GetLastError(), "device unplugged")

	// The header-only file is still a valid WAV header
	data, err := afero.ReadFile(fs, session.Path)
	require.NoError(t, err)
	assert.Len(t, data, 44)
}

func TestGetFileInfo(t *testing.T) {
	svc, fs := newTestService(t, WithSource(&faultSource{}))

	t.Run("header only", func(t *testing.T) {
		require.NoError(t, svc.StartRecording("empty"))
		_, session := svc.GetRecordingStatus()
		require.NoError(t, svc.StopRecording())

		info, err := svc.GetFileInfo(session.Path[len("/recordings/"):])
		require.NoError(t, err)
		assert.Equal(t, uint32(36), info.Header.RIFFSize)
		assert.Zero(t, info.Duration)
		assert.Nil(t, info.Probe)
		assert.NotEmpty(t, info.ProbeError)
	})

	t.Run("not a wav file", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/recordings/notes.wav", []byte("hello"), 0o644))
		_, err := svc.GetFileInfo("notes.wav")
		assert.ErrorIs(t, err, recorder.ErrIO)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.GetFileInfo("missing.wav")
		assert.ErrorIs(t, err, recorder.ErrIO)
	})

	for _, name := range []string{"", "..", "../etc/passwd.wav", "sub/take.wav", "take.mp3"} {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := svc.GetFileInfo(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestListRecordingsEmpty(t *testing.T) {
	svc, _ := newTestService(t, WithSource(&faultSource{}))

	recordings, err := svc.ListRecordings()
	require.NoError(t, err)
	assert.Empty(t, recordings)
}

func TestNewSelectsBackend(t *testing.T) {
	svc, err := New(testConfig(), WithStore(store.New(afero.NewMemMapFs())))
	require.NoError(t, err)
	defer svc.Close()
	assert.IsType(t, &audio.SyntheticSource{}, svc.src)

	cfg := testConfig()
	cfg.Audio.Backend = "jack"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestSessionFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	tests := []struct {
		name     string
		expected string
	}{
		{"Band Practice", "Band_Practice_20240309-140507.wav"},
		{"  ../../etc  ", "etc_20240309-140507.wav"},
		{"take-2", "take-2_20240309-140507.wav"},
		{"", "recording_20240309-140507.wav"},
		{"%%%", "recording_20240309-140507.wav"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, sessionFileName(test.name, at), "name %q", test.name)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "44 B", formatBytes(44))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
}
