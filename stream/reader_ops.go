package stream

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrLimitExceeded is ReadUntil's failure mode when maxN would be crossed
// without finding sep.
var ErrLimitExceeded = errors.New("stream: limit exceeded")

// ErrIncomplete is ReadUntil's failure mode on EOF before sep is found.
var ErrIncomplete = errors.New("stream: incomplete")

// ReadExact reads exactly n bytes from r, or until EOF, returning the
// short buffer on EOF without error (spec.md §4.2 "read(n)").
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return buf[:read], err
	}
	return buf[:read], nil
}

// ReadOnce reads at least one byte into p, returning the count. It returns
// 0 iff the underlying reader is at EOF (spec.md §4.2 "readOnce").
func ReadOnce(r io.Reader, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.Read(p)
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

// ReadUntil reads bytes from r into a growing buffer until sep is matched
// (inclusive), failing with ErrLimitExceeded if maxN would be crossed
// without a match, or ErrIncomplete on EOF before a match.
func ReadUntil(r io.Reader, maxN int, sep []byte) ([]byte, error) {
	var buf bytes.Buffer
	one := make([]byte, 1)
	for {
		if buf.Len() >= maxN {
			return nil, ErrLimitExceeded
		}
		n, err := r.Read(one)
		if n == 1 {
			buf.WriteByte(one[0])
			if buf.Len() >= len(sep) && bytes.HasSuffix(buf.Bytes(), sep) {
				return buf.Bytes(), nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrIncomplete
			}
			return nil, err
		}
	}
}

// Consume discards r's remaining bytes up to EOF.
func Consume(r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	if err == io.EOF {
		return nil
	}
	return err
}
