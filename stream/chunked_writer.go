package stream

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrFinished is returned by Write after Finish has been called.
var ErrFinished = errors.New("stream: chunked writer already finished")

// ChunkedWriter emits RFC 7230 chunked framing onto an underlying
// io.Writer: each Write is one chunk, hex(len)\r\n + bytes + \r\n; Finish
// emits the terminating zero chunk exactly once.
type ChunkedWriter struct {
	w        io.Writer
	finished bool
}

// NewChunkedWriter wraps w.
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// Write emits one chunk containing p.
func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	if cw.finished {
		return 0, ErrFinished
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(cw.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := cw.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := cw.w.Write(crlf); err != nil {
		return n, err
	}
	return n, nil
}

// Finish emits the terminating zero chunk and final CRLF exactly once.
// Further writes after Finish fail with ErrFinished.
func (cw *ChunkedWriter) Finish() error {
	if cw.finished {
		return nil
	}
	cw.finished = true
	_, err := cw.w.Write(zeroChunk)
	return err
}

var (
	crlf      = []byte("\r\n")
	zeroChunk = []byte("0\r\n\r\n")
)
