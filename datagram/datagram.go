// Package datagram implements the UDP datagram transport of spec.md §2
// (L4): send/recv over a net.PacketConn with writes queued as vectors and
// served in FIFO order, mirroring the write-item discipline of package
// stream but per-datagram rather than byte-stream framed.
package datagram

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/badu/aio"
)

// ErrClosed fails any SendTo issued after Close has run.
var ErrClosed = errors.New("datagram: closed")

type writeVector struct {
	data []byte
	addr net.Addr
	fut  *aio.Future[int]
}

// Transport wraps a net.PacketConn with a single writer-loop goroutine
// draining a FIFO of write vectors, so concurrent SendTo calls are
// serialized exactly like stream write items.
type Transport struct {
	disp *aio.Dispatcher
	pc   net.PacketConn

	writeCh   chan writeVector
	closeOnce sync.Once
	loopDone  chan struct{}
}

// New wraps pc. disp completes SendTo/RecvFrom futures so their callbacks
// run on the dispatcher.
func New(disp *aio.Dispatcher, pc net.PacketConn) *Transport {
	t := &Transport{
		disp:     disp,
		pc:       pc,
		writeCh:  make(chan writeVector, 256),
		loopDone: make(chan struct{}),
	}
	go t.writerLoop()
	return t
}

func (t *Transport) writerLoop() {
	defer close(t.loopDone)
	for v := range t.writeCh {
		n, err := t.pc.WriteTo(v.data, v.addr)
		if err != nil {
			_ = v.fut.Fail(err)
			continue
		}
		_ = v.fut.Complete(n)
	}
}

// SendTo enqueues p addressed to addr and returns a Future completed with
// the byte count once the datagram has been handed to the OS.
func (t *Transport) SendTo(p []byte, addr net.Addr) *aio.Future[int] {
	fut := aio.NewFuture[int](t.disp)
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case <-t.loopDone:
		_ = fut.Fail(ErrClosed)
		return fut
	default:
	}
	select {
	case t.writeCh <- writeVector{data: buf, addr: addr, fut: fut}:
	case <-t.loopDone:
		_ = fut.Fail(ErrClosed)
	}
	return fut
}

// RecvResult is one received datagram.
type RecvResult struct {
	N    int
	Addr net.Addr
}

// RecvFrom returns a Future completed once a datagram arrives into buf.
// Each call spawns one dedicated goroutine performing the blocking
// ReadFrom, which is this package's realization of the "readiness source"
// contract spec.md §1 declares external/unspecified.
func (t *Transport) RecvFrom(buf []byte) *aio.Future[RecvResult] {
	fut := aio.NewFuture[RecvResult](t.disp)
	go func() {
		n, addr, err := t.pc.ReadFrom(buf)
		if err != nil {
			_ = fut.Fail(err)
			return
		}
		_ = fut.Complete(RecvResult{N: n, Addr: addr})
	}()
	return fut
}

// Close stops the writer loop after it has sent every vector already
// queued, then closes the underlying PacketConn.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.writeCh)
		<-t.loopDone
		err = t.pc.Close()
	})
	return err
}

// LocalAddr returns the transport's local address.
func (t *Transport) LocalAddr() net.Addr { return t.pc.LocalAddr() }
