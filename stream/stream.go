// Package stream implements the byte-oriented async stream abstraction of
// spec.md §4.2: a duplex over a raw transport, with writes
// serialized through an internal FIFO of write items, each completed by a
// Future once its bytes are accepted by the underlying sink.
package stream

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/badu/aio"
)

// State mirrors the lifecycle in spec.md §3 ("Async stream reader/writer").
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateFinished
	StateStopped
	StateError
	StateClosed
)

// ErrClosed is failed into the future of a Write issued after the stream
// is closed; writes queued before CloseWait are still flushed.
var ErrClosed = errors.New("stream: closed")

// writeItem is one queued write, served by the writer loop in FIFO order.
type writeItem struct {
	data []byte
	fut  *aio.Future[int]
}

// Stream is a byte-oriented duplex channel backed by a lower io.ReadWriter
// (a raw socket, or another Stream). It owns a single writer-loop goroutine
// draining a FIFO of writeItems, and serves reads directly on the calling
// goroutine (reads are not pipelined in this implementation — only one
// reader is ever active at a time per the HTTP server's own single active
// request invariant).
type Stream struct {
	disp   *aio.Dispatcher
	source io.ReadWriteCloser

	mu    sync.Mutex
	state State
	err   error

	writeCh   chan writeItem
	closeOnce sync.Once
	closeFut  *aio.Future[struct{}]
	loopDone  chan struct{}

	eofMu sync.Mutex
	eof   bool
}

// New wraps source with the write-FIFO/loop machinery. disp is used to
// complete write-item and close futures so their callbacks run on the
// dispatcher.
func New(disp *aio.Dispatcher, source io.ReadWriteCloser) *Stream {
	s := &Stream{
		disp:     disp,
		source:   source,
		state:    StateInitialized,
		writeCh:  make(chan writeItem, 64),
		closeFut: aio.NewFuture[struct{}](disp),
		loopDone: make(chan struct{}),
	}
	s.state = StateRunning
	go s.writerLoop()
	return s
}

func (s *Stream) writerLoop() {
	defer close(s.loopDone)
	for item := range s.writeCh {
		n, err := writeFull(s.source, item.data)
		if err != nil {
			s.setErr(err)
			_ = item.fut.Fail(err)
			continue
		}
		_ = item.fut.Complete(n)
	}
}

func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateError
		s.err = err
	}
	s.mu.Unlock()
}

// Err returns the pending error recorded by the writer loop, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Write enqueues p as one write item and returns a Future completed with
// len(p) once the bytes are fully accepted by the underlying sink, or
// failed if the sink errors.
func (s *Stream) Write(p []byte) *aio.Future[int] {
	fut := aio.NewFuture[int](s.disp)
	buf := make([]byte, len(p))
	copy(buf, p)
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		_ = fut.Fail(ErrClosed)
		return fut
	}
	select {
	case s.writeCh <- writeItem{data: buf, fut: fut}:
	default:
		// Channel full: block the caller's goroutine (not the dispatcher)
		// until there's room, preserving write ordering.
		s.writeCh <- writeItem{data: buf, fut: fut}
	}
	return fut
}

// Read satisfies io.Reader by delegating straight to source; Stream does
// not buffer reads itself (bounded/chunked adapters do that framing).
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.source.Read(p)
	if err == io.EOF {
		s.eofMu.Lock()
		s.eof = true
		s.eofMu.Unlock()
	}
	return n, err
}

// AtEOF reports whether the last Read observed EOF.
func (s *Stream) AtEOF() bool {
	s.eofMu.Lock()
	defer s.eofMu.Unlock()
	return s.eof
}

// CloseWait idempotently flushes pending writes, signals EOF, transitions
// the loop to closed and completes the close future.
func (s *Stream) CloseWait() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.writeCh)
		<-s.loopDone
		closeErr = s.source.Close()
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		_ = s.closeFut.Complete(struct{}{})
	})
	_, _ = aio.WaitFor(s.disp, s.closeFut)
	return closeErr
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
