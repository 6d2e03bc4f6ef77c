package datagram

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/badu/aio"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc
}

func TestTransportSendAndRecv(t *testing.T) {
	d := aio.New(nil)
	serverPC := listenUDP(t)
	clientPC := listenUDP(t)

	server := New(d, serverPC)
	defer server.Close()
	client := New(d, clientPC)
	defer client.Close()

	buf := make([]byte, 16)
	recvFut := server.RecvFrom(buf)

	sendFut := client.SendTo([]byte("ping"), serverPC.LocalAddr())
	n, err := aio.WaitFor(d, sendFut)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	res, err := aio.WaitFor(d, recvFut)
	require.NoError(t, err)
	require.Equal(t, 4, res.N)
	require.Equal(t, "ping", string(buf[:res.N]))
}

func TestTransportSendAfterCloseFails(t *testing.T) {
	d := aio.New(nil)
	pc := listenUDP(t)
	transport := New(d, pc)
	require.NoError(t, transport.Close())

	fut := transport.SendTo([]byte("x"), pc.LocalAddr())
	_, err := aio.WaitFor(d, fut)
	require.ErrorIs(t, err, ErrClosed)
}
