package httpserver

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/badu/aio/hdr"
	"github.com/badu/aio/sniff"
	"github.com/badu/aio/stream"
)

// ErrNotEmpty is returned by sendBody/prepare when the response is not in
// the Empty state, and by sendChunk when not in Prepared or Sending.
var ErrNotEmpty = errors.New("httpserver: response not in the expected state")

var respExcludeHeader = map[string]bool{
	hdr.Date:             true,
	hdr.ContentType:      true,
	hdr.ContentLength:    true,
	hdr.Connection:       true,
	hdr.TransferEncoding: true,
}

var statusText = map[int]string{
	100: "Continue", 200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 302: "Found", 304: "Not Modified",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout", 409: "Conflict",
	411: "Length Required", 413: "Payload Too Large", 500: "Internal Server Error",
	503: "Service Unavailable", 505: "HTTP Version Not Supported",
}

func statusLine(code int) string {
	text, ok := statusText[code]
	if !ok {
		text = "Unknown"
	}
	return fmt.Sprintf("%d %s", code, text)
}

// writeHeadCommon writes the status line and the standard/user headers
// shared by both the fixed-length and chunked emission paths.
func (r *Response) writeHeadCommon(w io.Writer, contentLength int64, chunked bool) error {
	major, minor := r.Major, r.Minor
	if major == 0 {
		major, minor = 1, 1
	}
	if _, err := fmt.Fprintf(w, "HTTP/%d.%d %s\r\n", major, minor, statusLine(r.StatusCode)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s: %s\r\n", hdr.Date, time.Now().UTC().Format(hdr.TimeFormat)); err != nil {
		return err
	}
	ct := r.Header.Get(hdr.ContentType)
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	if _, err := fmt.Fprintf(w, "%s: %s\r\n", hdr.ContentType, ct); err != nil {
		return err
	}
	if chunked {
		if _, err := fmt.Fprintf(w, "%s: chunked\r\n", hdr.TransferEncoding); err != nil {
			return err
		}
	} else if contentLength > 0 {
		if _, err := fmt.Fprintf(w, "%s: %d\r\n", hdr.ContentLength, contentLength); err != nil {
			return err
		}
	}
	conn := r.Header.Get(hdr.Connection)
	if conn == "" {
		conn = "close"
		if r.Has(KeepAlive) {
			conn = "keep-alive"
		}
	}
	if _, err := fmt.Fprintf(w, "%s: %s\r\n", hdr.Connection, conn); err != nil {
		return err
	}
	if err := r.Header.WriteSubset(w, respExcludeHeader); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// sendBody implements spec.md §4.4's fixed-length response path. Requires
// state == Empty. data is retained on r.body (spec.md §3's "body buffer
// for the fixed-length path") so a handler or middleware wrapping the
// response can inspect what was actually sent after the fact.
func (r *Response) sendBody(data []byte) error {
	if r.state != Empty {
		return ErrNotEmpty
	}
	r.body = data
	w := r.conn.effectiveWriter()
	if err := r.writeHeadCommon(w, int64(len(r.body)), false); err != nil {
		r.state = Failed
		return nil
	}
	r.state = Prepared
	r.state = Sending
	if len(r.body) > 0 {
		if _, err := w.Write(r.body); err != nil {
			r.state = Failed
			return nil
		}
	}
	r.state = Finished
	return nil
}

// Body returns the bytes passed to SendBody/SendError, or nil if the
// response was sent chunked or has not been sent yet.
func (r *Response) Body() []byte { return r.body }

// sendError sets the status and sends body as a fixed-length response,
// allowed only from Empty (spec.md §4.4).
func (r *Response) sendError(code int, body []byte) error {
	r.StatusCode = code
	return r.sendBody(body)
}

// chunkedWriterHandle wraps stream.ChunkedWriter with the head-already-sent
// bookkeeping prepare()/sendChunk()/finish() need.
type chunkedWriterHandle struct {
	cw *stream.ChunkedWriter
}

// prepare emits headers with Transfer-Encoding: chunked and no
// Content-Length, and allocates the chunked writer (spec.md §4.4).
func (r *Response) prepare() error {
	if r.state != Empty {
		return ErrNotEmpty
	}
	w := r.conn.effectiveWriter()
	if err := r.writeHeadCommon(w, 0, true); err != nil {
		r.state = Failed
		return nil
	}
	r.flags[Chunked] = true
	r.cw = &chunkedWriterHandle{cw: stream.NewChunkedWriter(w)}
	r.state = Prepared
	return nil
}

// sendChunk writes one chunk; requires state Prepared or Sending.
func (r *Response) sendChunk(data []byte) error {
	if r.state != Prepared && r.state != Sending {
		return ErrNotEmpty
	}
	if _, err := r.cw.cw.Write(data); err != nil {
		r.state = Failed
		return nil
	}
	r.state = Sending
	return nil
}

// finish emits the terminating zero chunk.
func (r *Response) finish() error {
	if r.state != Prepared && r.state != Sending {
		return ErrNotEmpty
	}
	if err := r.cw.cw.Finish(); err != nil {
		r.state = Failed
		return nil
	}
	r.state = Finished
	return nil
}

// SendBody is the public entry point for the fixed-length response path.
func (r *Response) SendBody(data []byte) error { return r.sendBody(data) }

// SendError is the public entry point for spec.md §4.4's sendError.
func (r *Response) SendError(code int, body []byte) error { return r.sendError(code, body) }

// Prepare is the public entry point for the chunked response path.
func (r *Response) Prepare() error { return r.prepare() }

// SendChunk is the public entry point for streaming one chunk.
func (r *Response) SendChunk(data []byte) error { return r.sendChunk(data) }

// Finish is the public entry point terminating the chunked response.
func (r *Response) Finish() error { return r.finish() }

// DetectContentType sets the response's Content-Type header from a sniff
// of data (spec.md §1's default Content-Type is a flat
// "text/html; charset=utf-8", so sniffing never runs automatically); a
// handler that wants the net/http-style sniffed default for an unknown
// payload calls this explicitly before sendBody.
func (r *Response) DetectContentType(data []byte) {
	if r.Header.Get(hdr.ContentType) == "" {
		r.Header.Set(hdr.ContentType, sniff.DetectContentType(data))
	}
}
