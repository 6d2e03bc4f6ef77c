package stream

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// ErrProtocol is the RFC 7230 chunked-framing failure mode of spec.md §4.2:
// malformed chunk size, missing CRLF, or size overflow.
var ErrProtocol = errors.New("stream: chunked protocol error")

const maxChunkLineLength = 4096

// ChunkedReader decodes RFC 7230 chunked transfer encoding, adapted from
// the hex-size/CRLF framing the teacher's utils_chunks.go parses for the
// client-request path, generalized here into a standalone io.Reader.
type ChunkedReader struct {
	r   *bufio.Reader
	n   uint64 // bytes remaining in the current chunk
	err error
	eof bool // true once the zero-size chunk + trailer has been consumed
	buf [2]byte
}

// NewChunkedReader wraps r, which must be positioned at the start of the
// first chunk-size line.
func NewChunkedReader(r io.Reader) *ChunkedReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ChunkedReader{r: br}
}

// Read implements io.Reader. A short, non-error read (n>0, err==nil) with
// an error recorded internally surfaces that error on the following call,
// which is a valid io.Reader sequence.
func (cr *ChunkedReader) Read(b []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if len(b) == 0 {
		return 0, nil
	}

	if cr.n == 0 {
		if cr.eof {
			cr.err = io.EOF
			return 0, cr.err
		}
		cr.beginChunk()
		if cr.err != nil {
			return 0, cr.err
		}
		if cr.n == 0 {
			cr.eof = true
			if !cr.skipTrailer() {
				return 0, cr.err
			}
			cr.err = io.EOF
			return 0, cr.err
		}
	}

	rbuf := b
	if uint64(len(rbuf)) > cr.n {
		rbuf = rbuf[:cr.n]
	}
	n, err := cr.r.Read(rbuf)
	cr.n -= uint64(n)

	if err != nil {
		cr.err = err
		return n, nil
	}

	if cr.n == 0 {
		if _, e := io.ReadFull(cr.r, cr.buf[:2]); e != nil {
			if e == io.EOF {
				e = io.ErrUnexpectedEOF
			}
			cr.err = e
			return n, nil
		}
		if cr.buf[0] != '\r' || cr.buf[1] != '\n' {
			cr.err = errors.Wrap(ErrProtocol, "missing chunk-data CRLF")
			return n, nil
		}
	}
	return n, nil
}

func (cr *ChunkedReader) beginChunk() {
	line, err := readChunkLine(cr.r)
	if err != nil {
		cr.err = err
		return
	}
	cr.n, err = parseHexUint(line)
	if err != nil {
		cr.err = errors.Wrap(ErrProtocol, err.Error())
	}
}

// skipTrailer reads (and discards) the optional trailer headers following
// a zero-size chunk, up to the terminating blank line. Returns false if it
// set cr.err.
func (cr *ChunkedReader) skipTrailer() bool {
	for {
		line, err := readChunkLine(cr.r)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			cr.err = err
			return false
		}
		if len(line) == 0 {
			return true
		}
	}
}

func readChunkLine(b *bufio.Reader) ([]byte, error) {
	p, err := b.ReadSlice('\n')
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		} else if err == bufio.ErrBufferFull {
			err = errors.Wrap(ErrProtocol, "chunk line too long")
		}
		return nil, err
	}
	if len(p) >= maxChunkLineLength {
		return nil, errors.Wrap(ErrProtocol, "chunk line too long")
	}
	p = trimTrailingWhitespace(p)
	p = removeChunkExtension(p)
	return p, nil
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func trimTrailingWhitespace(b []byte) []byte {
	for len(b) > 0 && isASCIISpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// removeChunkExtension strips a "; ext" suffix: "0;token=val" => "0".
func removeChunkExtension(p []byte) []byte {
	for i, c := range p {
		if c == ';' {
			return p[:i]
		}
	}
	return p
}

func parseHexUint(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, errors.New("empty hex chunk size")
	}
	var n uint64
	for i, b := range v {
		var d byte
		switch {
		case '0' <= b && b <= '9':
			d = b - '0'
		case 'a' <= b && b <= 'f':
			d = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			d = b - 'A' + 10
		default:
			return 0, errors.New("invalid byte in chunk length")
		}
		if i == 16 {
			return 0, errors.New("chunk length too large")
		}
		n <<= 4
		n |= uint64(d)
	}
	return n, nil
}
