package capture

// Sink is what a sample source is handed when capture starts. Both methods
// are safe to call from the source's asynchronous callback: they never block
// and never perform file I/O.
type Sink interface {
	// Write stores captured PCM bytes and returns how many were kept
	Write(p []byte) int
	// Fault reports a hardware fault to the controller
	Fault(err error)
}

type bufferSink struct {
	buf   *Buffer
	fault func(error)
}

// NewSink binds a buffer and a fault callback into a Sink
func NewSink(buf *Buffer, fault func(error)) Sink {
	return &bufferSink{buf: buf, fault: fault}
}

func (s *bufferSink) Write(p []byte) int {
	return s.buf.Write(p)
}

func (s *bufferSink) Fault(err error) {
	if s.fault != nil {
		s.fault(err)
	}
}
