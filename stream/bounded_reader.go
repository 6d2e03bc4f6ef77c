package stream

import "io"

// BoundedReader caps an underlying reader at Limit bytes (spec.md §4.2
// "Bounded reader"), used to frame request bodies with a known
// Content-Length. AtEOF becomes true once Limit bytes have been delivered,
// distinct from the underlying reader's own EOF.
type BoundedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

// NewBoundedReader wraps r, refusing to read past limit bytes total.
func NewBoundedReader(r io.Reader, limit int64) *BoundedReader {
	return &BoundedReader{r: r, remaining: limit, limit: limit}
}

func (b *BoundedReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}

// AtEOF reports whether limit bytes have already been delivered.
func (b *BoundedReader) AtEOF() bool { return b.remaining <= 0 }

// Remaining reports how many bytes may still be read before the limit.
func (b *BoundedReader) Remaining() int64 { return b.remaining }

// Limit returns the configured byte cap.
func (b *BoundedReader) Limit() int64 { return b.limit }
