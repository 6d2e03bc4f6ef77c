package stream

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/badu/aio"
)

func newLoopback(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestStreamWriteDeliversBytes(t *testing.T) {
	client, server := newLoopback(t)
	d := aio.New(nil)
	s := New(d, client)
	defer s.CloseWait()

	go func() {
		buf := make([]byte, 5)
		io.ReadFull(server, buf)
	}()

	fut := s.Write([]byte("hello"))
	n, err := aio.WaitFor(d, fut)
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestStreamWritesAreOrderedFIFO(t *testing.T) {
	client, server := newLoopback(t)
	d := aio.New(nil)
	s := New(d, client)
	defer s.CloseWait()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 6)
		io.ReadFull(server, buf)
		received <- buf
	}()

	f1 := s.Write([]byte("ab"))
	f2 := s.Write([]byte("cd"))
	f3 := s.Write([]byte("ef"))
	aio.WaitFor(d, f1)
	aio.WaitFor(d, f2)
	aio.WaitFor(d, f3)

	require.Equal(t, []byte("abcdef"), <-received)
}

func TestStreamWriteAfterCloseWaitFails(t *testing.T) {
	client, _ := newLoopback(t)
	d := aio.New(nil)
	s := New(d, client)
	require.NoError(t, s.CloseWait())

	fut := s.Write([]byte("x"))
	_, err := aio.WaitFor(d, fut)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBoundedReaderCapsAtLimit(t *testing.T) {
	src := bytes.NewReader([]byte("0123456789"))
	br := NewBoundedReader(src, 4)
	out, err := io.ReadAll(br)
	require.NoError(t, err)
	require.Equal(t, "0123", string(out))
	require.True(t, br.AtEOF())
}

func TestBoundedReaderZeroRemainingEvenWithMoreUnderlyingData(t *testing.T) {
	src := bytes.NewReader([]byte("abc"))
	br := NewBoundedReader(src, 0)
	require.True(t, br.AtEOF())
	n, err := br.Read(make([]byte, 4))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}

func TestChunkedReaderDecodesMultipleChunks(t *testing.T) {
	raw := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	cr := NewChunkedReader(bytes.NewReader([]byte(raw)))
	out, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "Wikipedia", string(out))
}

func TestChunkedReaderRejectsBadFraming(t *testing.T) {
	raw := "4\r\nWikiXX5\r\npedia\r\n0\r\n\r\n"
	cr := NewChunkedReader(bytes.NewReader([]byte(raw)))
	_, err := io.ReadAll(cr)
	require.Error(t, err)
}

func TestChunkedReaderSkipsTrailerHeaders(t *testing.T) {
	raw := "3\r\nfoo\r\n0\r\nX-Trailer: 1\r\n\r\n"
	cr := NewChunkedReader(bytes.NewReader([]byte(raw)))
	out, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "foo", string(out))
}

func TestChunkedWriterRoundTripsWithReader(t *testing.T) {
	var buf bytes.Buffer
	cw := NewChunkedWriter(&buf)
	_, err := cw.Write([]byte("Wiki"))
	require.NoError(t, err)
	_, err = cw.Write([]byte("pedia"))
	require.NoError(t, err)
	require.NoError(t, cw.Finish())

	cr := NewChunkedReader(bytes.NewReader(buf.Bytes()))
	out, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "Wikipedia", string(out))
}

func TestChunkedWriterRejectsWriteAfterFinish(t *testing.T) {
	var buf bytes.Buffer
	cw := NewChunkedWriter(&buf)
	require.NoError(t, cw.Finish())
	_, err := cw.Write([]byte("x"))
	require.ErrorIs(t, err, ErrFinished)
}

func TestReadExactShortOnEOF(t *testing.T) {
	out, err := ReadExact(bytes.NewReader([]byte("ab")), 5)
	require.NoError(t, err)
	require.Equal(t, "ab", string(out))
}

func TestReadUntilFindsSeparator(t *testing.T) {
	out, err := ReadUntil(bytes.NewReader([]byte("GET / HTTP/1.1\r\n\r\nbody")), 1024, []byte("\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(out))
}

func TestReadUntilIncompleteOnEOF(t *testing.T) {
	_, err := ReadUntil(bytes.NewReader([]byte("no separator here")), 1024, []byte("\r\n\r\n"))
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestReadUntilLimitExceeded(t *testing.T) {
	_, err := ReadUntil(bytes.NewReader([]byte("aaaaaaaaaaaaaaaa")), 4, []byte("\n"))
	require.ErrorIs(t, err, ErrLimitExceeded)
}

func TestConsumeDrainsToEOF(t *testing.T) {
	r := bytes.NewReader([]byte("discard me"))
	require.NoError(t, Consume(r))
	n, err := r.Read(make([]byte, 1))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}
