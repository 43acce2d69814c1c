package recorder

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
	"github.com/audiolibrelab/wavrecorder/internal/store"
)

var voice = Config{Path: "/rec/take.wav", SampleRate: 16000, BitsPerSample: 16, Channels: 1}

// 100 ms halves: 3200 bytes at 16 kHz mono 16 bit
const testHalf = 3200

// fakeSource is a sample source the test drives by hand
type fakeSource struct {
	mu          sync.Mutex
	sink        capture.Sink
	running     bool
	supportsErr error
	startErr    error
	stopErr     error
	inits       int
	closes      int
	starts      int
	stops       int
}

func (f *fakeSource) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) Supports(capture.Format) error {
	return f.supportsErr
}

func (f *fakeSource) Start(_ capture.Format, sink capture.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.sink = sink
	f.running = true
	f.starts++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeSource) setStopErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopErr = err
}

func (f *fakeSource) write(p []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return 0
	}
	return f.sink.Write(p)
}

func (f *fakeSource) fault(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink.Fault(err)
}

func (f *fakeSource) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// faultyStore wraps a store so tests can fail or block data writes
type faultyStore struct {
	store.FileStore
	failWrites  atomic.Bool
	blockWrites atomic.Bool
	entered     chan struct{}
	unblock     chan struct{}
}

func newFaultyStore(fs afero.Fs) *faultyStore {
	return &faultyStore{
		FileStore: store.New(fs),
		entered:   make(chan struct{}, 1),
		unblock:   make(chan struct{}),
	}
}

func (s *faultyStore) Create(path string) (store.File, error) {
	f, err := s.FileStore.Create(path)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: f, s: s}, nil
}

type faultyFile struct {
	store.File
	s *faultyStore
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.s.blockWrites.Load() {
		select {
		case f.s.entered <- struct{}{}:
		default:
		}
		<-f.s.unblock
	}
	if f.s.failWrites.Load() {
		return 0, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

type testRig struct {
	rec *Recorder
	src *fakeSource
	fs  afero.Fs
}

func newRig(t *testing.T, fileStore func(afero.Fs) store.FileStore, opts ...Option) *testRig {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/rec", 0o755))

	fstore := store.FileStore(store.New(fs))
	if fileStore != nil {
		fstore = fileStore(fs)
	}

	src := &fakeSource{}
	opts = append([]Option{WithHalfBuffer(100 * time.Millisecond), WithStopTimeout(time.Second)}, opts...)
	rec := New(src, fstore, opts...)
	t.Cleanup(func() { _ = rec.Deinit() })
	return &testRig{rec: rec, src: src, fs: fs}
}

// feed writes n full halves, waiting for each to reach the file
func (r *testRig) feed(t *testing.T, n int) {
	t.Helper()
	half := make([]byte, testHalf)
	for i := 0; i < n; i++ {
		want := r.rec.RecordedBytes() + testHalf
		for j := range half {
			half[j] = byte(i + j)
		}
		require.Equal(t, testHalf, r.src.write(half))
		require.Eventually(t, func() bool {
			return r.rec.RecordedBytes() == want
		}, 2*time.Second, time.Millisecond)
	}
}

func (r *testRig) fileBytes(t *testing.T, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(r.fs, path)
	require.NoError(t, err)
	return data
}
