package httpserver

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/badu/aio"
	"github.com/badu/aio/tlsstream"
)

// Conn is the HTTP connection of spec.md §3: it owns the raw transport,
// the main reader/writer, optionally a TLS stream wrapping them, an
// effective reader/writer (TLS if present else main), a scratch header
// buffer, and a reference to its server.
//
// Each Conn runs its own private *aio.Dispatcher: spec.md §3 declares
// "one dispatcher per worker, there is exactly one" for the original
// single-threaded-process model; this realization's "worker" is the
// goroutine serving one connection, so each gets its own isolated
// Dispatcher instance rather than sharing one across the server.
type Conn struct {
	server  *Server
	netConn net.Conn
	disp    *aio.Dispatcher
	log     *logrus.Entry

	br  *bufio.Reader
	w   io.Writer
	tls *tlsstream.DuplexStream

	lastActivity time.Time
	hijacked     atomic.Bool
}

func newConn(srv *Server, nc net.Conn) *Conn {
	disp := aio.New(srv.log)
	return &Conn{
		server:       srv,
		netConn:      nc,
		disp:         disp,
		log:          srv.log,
		w:            nc,
		br:           bufio.NewReaderSize(nc, srv.MaxHeadersSize+4096),
		lastActivity: time.Now(),
	}
}

// effectiveReader returns the buffered reader sitting atop whichever
// transport (TLS or raw) is currently effective for this connection.
func (c *Conn) effectiveReader() io.Reader { return c.br }

// effectiveWriter returns the writer every response-emission path
// (writeHeadCommon, sendBody, the chunked writer, handleExpect's 100
// Continue, writeErrorLine) must go through: the TLS duplex when present,
// else the raw connection, guarded so that writes issued after DropAll/
// Close fail with ErrHijacked instead of racing the torn-down transport.
func (c *Conn) effectiveWriter() io.Writer { return hijackGuard{c: c, w: c.w} }

// hijackGuard wraps a Conn's writer so that a write attempted after the
// connection has been force-closed (DropAll, the idle sweep, or Close)
// fails with ErrHijacked instead of writing to — or racing the teardown
// of — a transport that is no longer this Conn's to use.
type hijackGuard struct {
	c *Conn
	w io.Writer
}

func (g hijackGuard) Write(p []byte) (int, error) {
	if g.c.hijacked.Load() {
		return 0, ErrHijacked
	}
	return g.w.Write(p)
}

// touch records activity for the idle-sweep housekeeping job.
func (c *Conn) touch() {
	c.lastActivity = time.Now()
}

// IdleSince reports how long it has been since the connection last made
// progress, used by housekeep's idle sweep.
func (c *Conn) IdleSince() time.Duration { return time.Since(c.lastActivity) }

// Close force-closes the connection's underlying transport, used by
// Server.DropAll and the idle sweep. It marks the connection hijacked
// first, so any response write racing the close observes ErrHijacked
// rather than writing to a transport mid-teardown.
func (c *Conn) Close() error {
	c.hijacked.Store(true)
	return c.netConn.Close()
}

// serve runs the per-connection loop of spec.md §4.4 until the
// connection closes. It is meant to be invoked as `go conn.serve()` by
// the accept loop.
func (c *Conn) serve() {
	defer c.server.untrack(c)
	defer c.netConn.Close()

	if c.server.Secure {
		if err := c.handshake(); err != nil {
			c.log.WithError(err).Warn("httpserver: TLS handshake failed")
			return
		}
	}

	for {
		if c.server.HeadersTimeout > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(c.server.HeadersTimeout))
		}

		req, err := getRequest(c)
		c.touch()
		if err != nil {
			c.handleHeadError(err)
			return
		}
		if req == nil {
			return // graceful peer disconnect before any bytes arrived
		}

		_ = c.netConn.SetReadDeadline(time.Time{})

		if err := prepareRequest(req, c.server.MaxRequestBodySize); err != nil {
			c.sendErrorBestEffort(req, statusFor(err))
			return
		}

		resp := newResponse(req, c)
		keepGoing := c.handleOne(req, resp)
		if req.bodyReader != nil {
			_ = req.bodyReader.Close()
		}
		if !keepGoing {
			return
		}
	}
}

func (c *Conn) handshake() error {
	tlsConn := tls.Server(c.netConn, c.server.TLSConfig)
	duplex := tlsstream.New(c.disp, tlsConn)
	_, err := aio.WaitFor(c.disp, duplex.Handshake())
	if err != nil {
		return err
	}
	c.tls = duplex
	c.w = duplex
	c.br = bufio.NewReaderSize(duplex, c.server.MaxHeadersSize+4096)
	return nil
}

// handleHeadError maps a getRequest/readHead failure to spec.md §4.4 step
// 1's disposition: 413/408/400/505 get a best-effort error response and
// the connection closes; a bare disconnect exits silently.
func (c *Conn) handleHeadError(err error) {
	if err == ErrDisconnect {
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.writeErrorLine(408)
		return
	}
	c.writeErrorLine(statusFor(err))
}

// handleOne invokes the user callback for req/resp and disposes of the
// result per spec.md §4.4 step 4, returning whether the loop should
// continue (keep-alive).
func (c *Conn) handleOne(req *Request, resp *Response) bool {
	handler := c.server.Handler
	if handler == nil {
		resp.StatusCode = 404
		_ = resp.sendBody(nil)
	} else {
		handler(resp, req)
	}

	switch resp.state {
	case Empty:
		resp.StatusCode = 404
		_ = resp.sendBody(nil)
	case Prepared:
		resp.StatusCode = 409
		_ = resp.sendBody(nil)
	case Sending:
		// partially sent: connection is closing regardless of keep-alive.
		return false
	}

	if !resp.Has(KeepAlive) {
		return false
	}
	if req.Major == 1 && req.Minor == 0 {
		return false
	}
	if req.bodyReader == nil && (req.Flags[BoundBody] || req.Flags[UnboundBody]) {
		if _, err := getBodyReader(req, c.server.MaxRequestBodySize); err != nil {
			return false
		}
	}
	if req.bodyReader != nil && !req.bodyReader.atBound() {
		// handler returned without fully consuming the body: drain it
		// per spec.md §9 ("must consume or close").
		_, _ = io.Copy(io.Discard, req.bodyReader)
	}
	return true
}

func (c *Conn) sendErrorBestEffort(req *Request, status int) {
	resp := newResponse(req, c)
	resp.StatusCode = status
	_ = resp.sendBody(nil)
}

// writeErrorLine emits a minimal status-line-only response for failures
// that occur before a Request even exists (head parse/timeout failures).
// It goes through effectiveWriter rather than netConn directly: on a
// Secure connection the handshake has already completed, so writing raw
// bytes straight to the socket would inject plaintext into the
// established TLS record stream.
func (c *Conn) writeErrorLine(status int) {
	line := "HTTP/1.1 " + statusLine(status) + "\r\nConnection: close\r\n\r\n"
	_, _ = c.effectiveWriter().Write([]byte(line))
}
