package recorder

import "github.com/audiolibrelab/wavrecorder/internal/capture"

// SampleSource is the capture hardware. Once started it delivers PCM bytes
// continuously to the sink from its own notification context until Stop.
type SampleSource interface {
	// Supports reports whether the source can capture f
	Supports(f capture.Format) error
	// Start begins continuous capture into sink
	Start(f capture.Format, sink capture.Sink) error
	// Stop halts capture. No sink call happens after it returns.
	Stop() error
}

// Initializer is implemented by sources that need setup before first use
type Initializer interface {
	Init() error
}

// Closer is implemented by sources holding resources released at Deinit
type Closer interface {
	Close() error
}
