package httpserver

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/badu/aio/stream"
)

// ErrBodyLimitExceeded is failed when a body read would cross
// maxRequestBodySize (spec.md §4.4 "body acquisition").
var ErrBodyLimitExceeded = newStatusError(413, errors.New("httpserver: request body exceeds maxRequestBodySize"))

// bodyReader is the façade of spec.md §4.2 "HTTP body reader": it holds a
// sequence of underlying readers, the first of which is the source; the
// rest are held solely for lifetime so that closing the façade closes the
// whole pipeline in order.
type bodyReader struct {
	source  io.Reader
	bounded *stream.BoundedReader
	held    []io.Closer
}

// atBound reports whether the lowest-level bounded reader is at EOF with
// zero bytes remaining, distinguishing "client sent too much" (never true
// here, since reads are bounded) from "server aborted early".
func (b *bodyReader) atBound() bool {
	return b.bounded != nil && b.bounded.AtEOF()
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.source.Read(p)
	if err == stream.ErrProtocol || errors.Cause(err) == stream.ErrProtocol {
		return n, newStatusError(400, err)
	}
	return n, err
}

func (b *bodyReader) Close() error {
	for i := len(b.held) - 1; i >= 0; i-- {
		_ = b.held[i].Close()
	}
	return nil
}

// getBodyReader composes the body reader for req per spec.md §4.4 "Body
// acquisition": a bounded reader for BoundBody, or a chunked reader
// wrapping a maxRequestBodySize-bounded reader for UnboundBody. It always
// invokes handleExpect first.
func getBodyReader(req *Request, maxBody int64) (*bodyReader, error) {
	if req.bodyReader != nil {
		return req.bodyReader, nil
	}
	if err := handleExpect(req); err != nil {
		return nil, err
	}

	switch {
	case req.Flags[BoundBody]:
		bounded := stream.NewBoundedReader(req.conn.effectiveReader(), req.ContentLength)
		req.bodyReader = &bodyReader{source: bounded, bounded: bounded}
	case req.Flags[UnboundBody]:
		capReader := stream.NewBoundedReader(req.conn.effectiveReader(), maxBody)
		chunked := stream.NewChunkedReader(&ceilingReader{BoundedReader: capReader})
		req.bodyReader = &bodyReader{source: chunked, bounded: capReader}
	default:
		req.bodyReader = &bodyReader{source: io.LimitReader(req.conn.effectiveReader(), 0)}
	}
	return req.bodyReader, nil
}

// handleExpect emits the provisional "100 Continue" response the first
// time req's body is about to be read, iff the client sent
// Expect: 100-continue on an HTTP/1.1 request (spec.md §4.4). It writes
// through effectiveWriter rather than the raw net.Conn: on a Secure
// connection the handshake has already completed, so writing straight to
// the socket would inject plaintext into the established TLS record
// stream and corrupt it for the client.
func handleExpect(req *Request) error {
	if !req.Flags[ClientExpect] || req.conn.server.NoExpectHandler {
		return nil
	}
	if req.Major != 1 || req.Minor != 1 {
		return nil
	}
	if req.continueSent {
		return nil
	}
	req.continueSent = true
	_, err := req.conn.effectiveWriter().Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
	return err
}

// DecodedBody returns a reader that transparently decompresses one layer
// of req's body: gzip when the Content-Encoding tokens include "gzip",
// otherwise deflate when they include "deflate" or "compress". Only that
// single layer is removed; a body encoded with several tokens is returned
// with the remaining layers still applied. The "br" token is recognized
// but left undecoded (§4.11).
func (req *Request) DecodedBody(maxBody int64) (io.ReadCloser, error) {
	br, err := getBodyReader(req, maxBody)
	if err != nil {
		return nil, err
	}
	var r io.Reader = br
	if req.ContentEncoding["gzip"] {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, statusErrorf(400, "invalid gzip body: %v", err)
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, closerFunc(func() error { gz.Close(); return br.Close() })}, nil
	}
	if req.ContentEncoding["deflate"] || req.ContentEncoding["compress"] {
		fr := flate.NewReader(r)
		return struct {
			io.Reader
			io.Closer
		}{fr, closerFunc(func() error { fr.Close(); return br.Close() })}, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{r, br}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ceilingReader turns a BoundedReader's silent EOF-at-limit into
// ErrBodyLimitExceeded, which is how spec.md §4.4 describes the
// UnboundBody path's maxRequestBodySize ceiling: "if a body read hits the
// bounded-reader ceiling, fail with 413" rather than truncate quietly, the
// way the BoundBody path's Content-Length framing does.
type ceilingReader struct {
	*stream.BoundedReader
}

func (c *ceilingReader) Read(p []byte) (int, error) {
	if c.BoundedReader.AtEOF() {
		return 0, ErrBodyLimitExceeded
	}
	n, err := c.BoundedReader.Read(p)
	if err == io.EOF && c.BoundedReader.AtEOF() {
		return n, ErrBodyLimitExceeded
	}
	return n, err
}
