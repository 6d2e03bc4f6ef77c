package tlsstream

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/badu/aio"
)

func generateTestCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
}

func TestDuplexStreamHandshakeAndRoundTrip(t *testing.T) {
	cert := generateTestCert(t)
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	d := aio.New(nil)
	serverTLS := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
	duplex := New(d, serverTLS)
	defer duplex.Close()

	clientDone := make(chan error, 1)
	go func() {
		clientTLS := tls.Client(clientConn, &tls.Config{InsecureSkipVerify: true})
		clientDone <- clientTLS.Handshake()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(clientTLS, buf)
		_, _ = clientTLS.Write(buf)
	}()

	_, err := aio.WaitFor(d, duplex.Handshake())
	require.NoError(t, err)
	require.NoError(t, <-clientDone)

	writeFut := duplex.WriteAsync([]byte("hello"))
	n, err := aio.WaitFor(d, writeFut)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	readN, err := duplex.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:readN]))
}

func TestDuplexStreamBlockingWriteImplementsIOWriter(t *testing.T) {
	cert := generateTestCert(t)
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	d := aio.New(nil)
	serverTLS := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
	duplex := New(d, serverTLS)
	defer duplex.Close()

	var w io.Writer = duplex

	clientDone := make(chan error, 1)
	received := make(chan []byte, 1)
	go func() {
		clientTLS := tls.Client(clientConn, &tls.Config{InsecureSkipVerify: true})
		clientDone <- clientTLS.Handshake()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(clientTLS, buf)
		received <- buf
	}()

	_, err := aio.WaitFor(d, duplex.Handshake())
	require.NoError(t, err)
	require.NoError(t, <-clientDone)

	n, err := w.Write([]byte("world"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(<-received))
}

func TestDuplexStreamCloseFailsQueuedOperations(t *testing.T) {
	cert := generateTestCert(t)
	_, serverConn := net.Pipe()
	d := aio.New(nil)
	serverTLS := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
	duplex := New(d, serverTLS)

	require.NoError(t, duplex.Close())

	fut := duplex.WriteAsync([]byte("x"))
	_, err := aio.WaitFor(d, fut)
	require.ErrorIs(t, err, ErrClosed)

	_, err = duplex.Write([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}
