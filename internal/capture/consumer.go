package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrWrite wraps a failure of the sink file while draining a half
	ErrWrite = errors.New("consumer write failed")
	// ErrConsumerBusy is returned when the consumer did not reach a quiescent point in time
	ErrConsumerBusy = errors.New("consumer did not acknowledge in time")
	// ErrConsumerStopped is returned for requests sent to a consumer that has exited
	ErrConsumerStopped = errors.New("consumer stopped")
)

type command int

const (
	cmdSuspend command = iota
	cmdResume
	cmdStop
)

type request struct {
	op  command
	ack chan struct{}
}

// Consumer is the task that drains ready halves into the output file. It is
// the only writer to that file while a session is recording or paused.
type Consumer struct {
	buf     *Buffer
	w       io.Writer
	onFault func(error)
	logger  *slog.Logger

	written atomic.Uint64
	drained atomic.Uint64

	ctrl      chan request
	done      chan struct{}
	startOnce sync.Once

	// consumer goroutine only
	suspended bool
	faulted   bool
}

// NewConsumer creates a consumer draining buf into w. onFault is called at
// most once, from the consumer goroutine, when a write fails.
func NewConsumer(buf *Buffer, w io.Writer, onFault func(error), logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		buf:     buf,
		w:       w,
		onFault: onFault,
		logger:  logger.With("component", "consumer"),
		ctrl:    make(chan request),
		done:    make(chan struct{}),
	}
}

// Start launches the consumer goroutine in the running state
func (c *Consumer) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Written returns the number of bytes appended to the file so far
func (c *Consumer) Written() uint64 {
	return c.written.Load()
}

// Drained returns the number of halves taken off the buffer
func (c *Consumer) Drained() uint64 {
	return c.drained.Load()
}

// Done is closed when the consumer goroutine has exited
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Suspend stops draining. It returns once the consumer is idle between
// writes, or ErrConsumerBusy if it stayed inside a write for all of timeout.
func (c *Consumer) Suspend(timeout time.Duration) error {
	return c.send(cmdSuspend, timeout)
}

// Resume continues draining after Suspend
func (c *Consumer) Resume(timeout time.Duration) error {
	return c.send(cmdResume, timeout)
}

// Stop ends the consumer goroutine and waits up to timeout for it to exit.
// Stopping an exited consumer is not an error.
func (c *Consumer) Stop(timeout time.Duration) error {
	err := c.send(cmdStop, timeout)
	if errors.Is(err, ErrConsumerStopped) {
		return nil
	}
	return err
}

// send delivers a control request. Only delivery is bounded: once the
// consumer has received a request it acknowledges without blocking, so
// ErrConsumerBusy always means the request was not applied.
func (c *Consumer) send(op command, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := request{op: op, ack: make(chan struct{})}
	select {
	case c.ctrl <- req:
	case <-c.done:
		return ErrConsumerStopped
	case <-timer.C:
		return ErrConsumerBusy
	}

	<-req.ack
	if op == cmdStop {
		<-c.done
	}
	return nil
}

func (c *Consumer) run() {
	defer close(c.done)
	c.logger.Debug("consumer started", "half_size", c.buf.HalfSize())

	for {
		if c.suspended {
			// Only control requests are observed while suspended
			if c.handle(<-c.ctrl) {
				return
			}
			continue
		}

		select {
		case req := <-c.ctrl:
			if c.handle(req) {
				return
			}
		case ev := <-c.buf.Events().C():
			c.drain(ev)
		}
	}
}

// handle applies a control request and reports whether the loop must exit
func (c *Consumer) handle(req request) bool {
	defer close(req.ack)

	switch req.op {
	case cmdSuspend:
		c.suspended = true
		c.logger.Debug("consumer suspended", "written", c.written.Load())
	case cmdResume:
		c.suspended = false
		c.logger.Debug("consumer resumed")
	case cmdStop:
		c.logger.Debug("consumer stopping", "written", c.written.Load(), "halves", c.drained.Load())
		return true
	}
	return false
}

func (c *Consumer) drain(ev Event) {
	lease, ok := c.buf.Acquire(ev)
	if !ok {
		c.logger.Debug("ready event without ready half", "event", ev)
		return
	}
	defer lease.Release()
	c.drained.Add(1)

	// After a write failure halves are returned unread
	if c.faulted {
		return
	}

	data := lease.Bytes()
	n, err := c.w.Write(data)
	if n > 0 {
		c.written.Add(uint64(n))
	}
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		c.faulted = true
		c.logger.Error("failed to append half", "half", lease.Half(), "written", n, "error", err)
		if c.onFault != nil {
			c.onFault(fmt.Errorf("%w: %w", ErrWrite, err))
		}
	}
}
