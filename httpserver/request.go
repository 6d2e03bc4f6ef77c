package httpserver

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/badu/aio/hdr"
	"github.com/badu/aio/url"
)

// maxStartLineLength bounds the request line, independent of
// maxHeadersSize (which bounds the whole head). Header-field lines are
// bounded only by maxHeadersSize.
const maxStartLineLength = 8192

// getRequest reads and parses one request head from c's effective reader,
// per spec.md §4.4 step 1: read into a buffer capped at maxHeadersSize
// until CRLFCRLF, then parse request-line and headers. The caller is
// expected to have already armed a read deadline for headersTimeout.
func getRequest(c *Conn) (*Request, error) {
	raw, err := readHead(c.br, c.server.MaxHeadersSize)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrDisconnect
	}

	lines := splitCRLFLines(raw)
	if len(lines) == 0 {
		return nil, statusErrorf(400, "empty request")
	}

	method, rawPath, major, minor, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	header := hdr.Header{}
	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		k, v, ok := splitHeaderLine(line)
		if !ok {
			return nil, statusErrorf(400, "malformed header line %q", line)
		}
		header.Add(k, v)
	}

	req := &Request{
		Method:  method,
		Major:   major,
		Minor:   minor,
		RawPath: rawPath,
		Header:  header,
		conn:    c,
	}
	return req, nil
}

// readHead reads bytes from br up to the CRLFCRLF end-of-headers marker,
// failing once more than limit bytes have been consumed without finding
// it (spec.md §4.4 step 1, "limit exceeded → 413"). Returns nil, nil if
// the peer closes before a single byte arrives; getRequest maps that to
// ErrDisconnect.
func readHead(br *bufio.Reader, limit int) ([]byte, error) {
	var buf []byte
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			buf = append(buf, line...)
		}
		if len(buf) > limit {
			return nil, newStatusError(413, errTooLarge)
		}
		if err != nil {
			if err == bufio.ErrBufferFull {
				// ReadSlice stopped mid-line because it exceeded the
				// bufio.Reader's internal buffer; keep accumulating.
				continue
			}
			if err == io.EOF {
				if len(buf) == 0 {
					return nil, nil
				}
				return nil, statusErrorf(400, "unexpected EOF reading request head")
			}
			return nil, err
		}
		if endsInBlankLine(buf) {
			return buf, nil
		}
	}
}

var errTooLarge = errors.New("httpserver: request head exceeds maxHeadersSize")

func endsInBlankLine(buf []byte) bool {
	n := len(buf)
	return (n >= 4 && string(buf[n-4:]) == "\r\n\r\n") || (n >= 2 && string(buf[n-2:]) == "\n\n")
}

// splitCRLFLines splits raw (the accumulated head, including its
// terminating blank line) into its constituent lines, each with its
// trailing CRLF/LF stripped, discarding the final empty terminator line.
func splitCRLFLines(raw []byte) []string {
	s := string(raw)
	s = strings.TrimSuffix(s, "\r\n\r\n")
	s = strings.TrimSuffix(s, "\n\n")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, strings.TrimSuffix(p, "\r"))
	}
	return lines
}

func parseRequestLine(line string) (method, path string, major, minor int, err error) {
	if len(line) > maxStartLineLength {
		return "", "", 0, 0, newStatusError(413, errTooLarge)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", 0, 0, statusErrorf(400, "malformed request line %q", line)
	}
	method = fields[0]
	path = fields[1]
	major, minor, ok := parseHTTPVersion(fields[2])
	if !ok {
		return "", "", 0, 0, statusErrorf(505, "unsupported HTTP version %q", fields[2])
	}
	return method, path, major, minor, nil
}

func parseHTTPVersion(v string) (major, minor int, ok bool) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(v, prefix) {
		return 0, 0, false
	}
	v = v[len(prefix):]
	dot := strings.IndexByte(v, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(v[:dot])
	min, err2 := strconv.Atoi(v[dot+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if maj != 1 || (min != 0 && min != 1) {
		return 0, 0, false
	}
	return maj, min, true
}

func splitHeaderLine(line string) (key, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:colon])
	value = hdr.TrimString(line[colon+1:])
	if !hdr.ValidHeaderFieldName(key) {
		return "", "", false
	}
	return key, value, true
}

// prepareRequest validates and classifies req per spec.md §4.4 step 2.
func prepareRequest(req *Request, maxBody int64) error {
	if !knownMethods[req.Method] {
		return statusErrorf(400, "unknown method %q", req.Method)
	}
	if req.RawPath == "" {
		return statusErrorf(400, "empty request path")
	}

	hosts := req.Header[hdr.Host]
	if req.ProtoAtLeast(1, 1) && len(hosts) == 0 && req.Method != "CONNECT" {
		return statusErrorf(400, "missing required Host header")
	}
	if len(hosts) > 1 {
		return statusErrorf(400, "too many Host headers")
	}
	if len(hosts) == 1 && !ValidHostHeader(hosts[0]) {
		return statusErrorf(400, "malformed Host header")
	}
	for k, vv := range req.Header {
		if !hdr.ValidHeaderFieldName(k) {
			return statusErrorf(400, "invalid header name %q", k)
		}
		for _, v := range vv {
			if !hdr.ValidHeaderFieldValue(v) {
				return statusErrorf(400, "invalid header value for %q", k)
			}
		}
	}

	if len(req.Header[hdr.ContentType]) > 1 {
		return statusErrorf(400, "duplicate Content-Type header")
	}
	if len(req.Header[hdr.ContentLength]) > 1 {
		return statusErrorf(400, "duplicate Content-Length header")
	}
	if len(req.Header[hdr.TransferEncoding]) > 1 {
		return statusErrorf(400, "duplicate Transfer-Encoding header")
	}

	u, err := url.ParseRequestURI(req.RawPath)
	if err != nil {
		return statusErrorf(400, "malformed request path: %v", err)
	}
	req.URI = u
	req.Scheme = u.Scheme
	if req.Scheme != "" && req.Scheme != "http" && req.Scheme != "https" {
		return statusErrorf(400, "unsupported scheme %q", req.Scheme)
	}
	req.Query = u.Query()

	req.TransferEncoding = parseTokenSet(req.Header.Get(hdr.TransferEncoding),
		map[string]bool{"identity": true, "chunked": true, "compress": true, "deflate": true, "gzip": true})
	if req.TransferEncoding == nil {
		return statusErrorf(400, "unknown transfer-encoding token")
	}
	req.ContentEncoding = parseTokenSet(req.Header.Get(hdr.ContentEncoding),
		map[string]bool{"identity": true, "chunked": true, "compress": true, "deflate": true, "gzip": true, "br": true})
	if req.ContentEncoding == nil {
		return statusErrorf(400, "unknown content-encoding token")
	}

	cl := req.Header.Get(hdr.ContentLength)
	chunked := req.TransferEncoding["chunked"]
	if cl != "" && chunked {
		return statusErrorf(400, "both Content-Length and chunked Transfer-Encoding present")
	}

	if req.Method == "TRACE" && (cl != "" || chunked) {
		return statusErrorf(400, "TRACE request must not carry a body")
	}

	req.Flags = map[RequestFlag]bool{}
	if cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return statusErrorf(400, "malformed Content-Length")
		}
		if n > maxBody {
			return newStatusError(413, errTooLarge)
		}
		req.ContentLength = n
		if n > 0 {
			req.Flags[BoundBody] = true
		}
	} else if chunked {
		req.Flags[UnboundBody] = true
	}

	ct := req.Header.Get(hdr.ContentType)
	switch {
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		req.Flags[UrlencodedForm] = true
	case strings.HasPrefix(ct, "multipart/form-data"):
		req.Flags[MultipartForm] = true
	}

	if expect := strings.TrimSpace(req.Header.Get(hdr.Expect)); strings.EqualFold(expect, "100-continue") {
		req.Flags[ClientExpect] = true
	}

	return nil
}

// parseTokenSet lowercases, comma-splits and whitespace-trims v, returning
// the set of tokens found, or nil if any token isn't in allowed.
func parseTokenSet(v string, allowed map[string]bool) map[string]bool {
	set := map[string]bool{}
	if v == "" {
		return set
	}
	for _, tok := range strings.Split(v, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if !allowed[tok] {
			return nil
		}
		set[tok] = true
	}
	return set
}
