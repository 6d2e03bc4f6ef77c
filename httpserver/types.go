package httpserver

import (
	"strings"

	"github.com/badu/aio/hdr"
	"github.com/badu/aio/url"
)

// RequestFlag is one element of the request flags set of spec.md §3.
type RequestFlag int

const (
	BoundBody RequestFlag = iota
	UnboundBody
	MultipartForm
	UrlencodedForm
	ClientExpect
)

// ResponseFlag is one element of the response flags set of spec.md §3.
type ResponseFlag int

const (
	KeepAlive ResponseFlag = iota
	Chunked
)

// ResponseState is the response lifecycle of spec.md §3. State advances
// monotonically except Sending→Sending, which is permitted for repeated
// chunk writes.
type ResponseState int32

const (
	Empty ResponseState = iota
	Prepared
	Sending
	Finished
	Failed
	Cancelled
	Dumb
)

func (s ResponseState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Prepared:
		return "prepared"
	case Sending:
		return "sending"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Dumb:
		return "dumb"
	default:
		return "unknown"
	}
}

// knownMethods bounds prepareRequest's method check (spec.md §4.4 step 2).
var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
	"CONNECT": true, "OPTIONS": true, "TRACE": true, "PATCH": true,
}

// Request is immutable after parsing/prepareRequest, per spec.md §3.
type Request struct {
	Method   string
	Major    int
	Minor    int
	RawPath  string
	URI      *url.URL
	Query    url.Values
	Header   hdr.Header
	Scheme   string

	ContentEncoding  map[string]bool
	TransferEncoding map[string]bool
	Flags            map[RequestFlag]bool

	ContentLength int64

	conn *Conn

	bodyReader   *bodyReader
	continueSent bool
	postForm     hdr.Header
	postErr      error
}

// ProtoAtLeast reports whether the request's HTTP version is at least
// major.minor.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.Major > major || (r.Major == major && r.Minor >= minor)
}

// Has reports whether flag is set on the request.
func (r *Request) Has(flag RequestFlag) bool { return r.Flags[flag] }

// RemoteAddr returns the underlying connection's remote address string.
func (r *Request) RemoteAddr() string {
	if r.conn == nil || r.conn.netConn == nil {
		return ""
	}
	return r.conn.netConn.RemoteAddr().String()
}

// Response is the per-request response builder of spec.md §3/§4.4.
type Response struct {
	StatusCode int
	Major      int
	Minor      int
	Header     hdr.Header
	body       []byte

	flags map[ResponseFlag]bool
	state ResponseState

	conn *Conn
	req  *Request
	cw   *chunkedWriterHandle
}

func newResponse(req *Request, c *Conn) *Response {
	flags := map[ResponseFlag]bool{}
	if req.ProtoAtLeast(1, 1) && !strings.EqualFold(req.Header.Get(hdr.Connection), "close") {
		flags[KeepAlive] = true
	}
	return &Response{
		StatusCode: 200,
		Major:      req.Major,
		Minor:      req.Minor,
		Header:     hdr.Header{},
		flags:      flags,
		state:      Empty,
		conn:       c,
		req:        req,
	}
}

// Has reports whether flag is set on the response.
func (r *Response) Has(flag ResponseFlag) bool { return r.flags[flag] }

// SetKeepAlive overrides the keep-alive flag computed from the request
// version; clearing it forces the connection to close after this response.
func (r *Response) SetKeepAlive(v bool) { r.flags[KeepAlive] = v }

// State returns the response's current lifecycle state.
func (r *Response) State() ResponseState { return r.state }
