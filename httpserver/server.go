package httpserver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var errAlreadyRunning = errors.New("httpserver: server already running")

// Handler is the user callback of spec.md §4.4 step 3. It must eventually
// drive resp through one of sendBody/prepare+sendChunk*+finish/sendError;
// returning without doing so leaves resp Empty, which the connection loop
// maps to a 404 per spec.md §4.4 step 4.
type Handler func(resp *Response, req *Request)

// ServerState is the observable server lifecycle of spec.md §6:
// ServerStopped → ServerRunning → ServerStopped → ServerClosed (terminal).
type ServerState int32

const (
	ServerStopped ServerState = iota
	ServerRunning
	ServerClosed
)

// Server construction options, enumerated in spec.md §6.
type Server struct {
	Handler Handler
	log     *logrus.Entry

	// Secure requires a TLS key+cert and performs a handshake on each
	// connection.
	Secure    bool
	TLSConfig *tls.Config

	// NoExpectHandler suppresses the automatic 100 Continue response.
	NoExpectHandler bool

	// MaxConnections bounds concurrently admitted connections; -1 disables
	// the bound (unlimited), per spec.md §6.
	MaxConnections int

	// HeadersTimeout bounds complete request-head reception.
	HeadersTimeout time.Duration

	// MaxHeadersSize caps the request head buffer; exceeding it maps to 413.
	MaxHeadersSize int

	// MaxRequestBodySize caps a request body; exceeding it maps to 413.
	MaxRequestBodySize int64

	// BacklogSize is the OS listen backlog.
	BacklogSize int

	// ServerURI overrides the scheme/host used when constructing absolute
	// URIs, e.g. in Location headers built by handlers.
	ServerURI string

	mu       sync.Mutex
	state    ServerState
	sem      *semaphore.Weighted
	listener net.Listener
	conns    map[*Conn]struct{}
	closed   chan struct{}
}

// DefaultMaxHeadersSize matches the teacher's own header buffer default.
const DefaultMaxHeadersSize = 1 << 20 // 1 MiB

// NewServer constructs a Server with spec.md §6's defaults: unlimited
// connections, no header/body caps beyond DefaultMaxHeadersSize/1GiB, no
// headers timeout.
func NewServer(handler Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		Handler:            handler,
		log:                log,
		MaxConnections:     -1,
		MaxHeadersSize:     DefaultMaxHeadersSize,
		MaxRequestBodySize: 1 << 30,
		BacklogSize:        128,
		conns:              map[*Conn]struct{}{},
		closed:             make(chan struct{}),
	}
}

// Serve runs the accept loop of spec.md §4.4 over ln until the server is
// stopped or the listener errors fatally. It registers each accepted
// connection in a table keyed by its *Conn and serves it on its own
// goroutine, admitting connections through a weighted semaphore when
// MaxConnections >= 0 (§4.10).
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.state != ServerStopped {
		s.mu.Unlock()
		return errAlreadyRunning
	}
	s.state = ServerRunning
	s.listener = ln
	if s.MaxConnections >= 0 {
		s.sem = semaphore.NewWeighted(int64(s.MaxConnections))
	}
	s.mu.Unlock()

	ctx := context.Background()
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
		}
		nc, err := ln.Accept()
		if err != nil {
			if s.sem != nil {
				s.sem.Release(1)
			}
			select {
			case <-s.closed:
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.log.WithError(err).Warn("httpserver: transient accept error")
				continue
			}
			return err
		}

		c := newConn(s, nc)
		s.track(c)
		go func() {
			defer func() {
				if s.sem != nil {
					s.sem.Release(1)
				}
			}()
			c.serve()
		}()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// DropAll force-closes every tracked connection's underlying net.Conn.
// spec.md §9 leaves drop() as an Open Question ("declared but effectively
// a no-op"); this implements it for real.
func (s *Server) DropAll() {
	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, c := range targets {
		c := c
		g.Go(func() error { return c.Close() })
	}
	_ = g.Wait()
}

// IdleConnections returns a snapshot of currently tracked connections, for
// housekeep's idle sweep.
func (s *Server) IdleConnections() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Stop transitions ServerRunning → ServerStopped, closing the listener so
// Serve's accept loop returns.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ServerRunning {
		return nil
	}
	s.state = ServerStopped
	close(s.closed)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// CloseWait stops the server, force-closes every live connection, and
// transitions to the terminal ServerClosed state.
func (s *Server) CloseWait() error {
	err := s.Stop()
	s.DropAll()
	s.mu.Lock()
	s.state = ServerClosed
	s.mu.Unlock()
	return err
}

// State returns the server's current observable lifecycle state.
func (s *Server) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
