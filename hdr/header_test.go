package hdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderGetSetAddDel(t *testing.T) {
	h := Header{}
	h.Set("Content-Type", "text/plain")
	require.Equal(t, "text/plain", h.Get("content-type"))

	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")
	require.Equal(t, []string{"a", "b"}, h["X-Custom"])

	h.Del("x-custom")
	require.Empty(t, h["X-Custom"])
}

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	h := Header{}
	h.Set("content-length", "5")
	require.Equal(t, "5", h.Get("Content-Length"))
	require.Equal(t, "5", h.Get("CONTENT-LENGTH"))
}

func TestHeaderCloneIsIndependent(t *testing.T) {
	h := Header{}
	h.Add("X-A", "1")
	h2 := h.Clone()
	h2.Add("X-A", "2")
	require.Equal(t, []string{"1"}, h["X-A"])
	require.Equal(t, []string{"1", "2"}, h2["X-A"])
}

func TestHeaderWriteSubsetCanonicalizes(t *testing.T) {
	h := Header{}
	h.Set("x-request-id", "42")
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	require.Contains(t, buf.String(), "X-Request-Id: 42\r\n")
}

func TestCanonicalHeaderKey(t *testing.T) {
	require.Equal(t, "Content-Type", CanonicalHeaderKey("content-type"))
	require.Equal(t, "Content-Type", CanonicalHeaderKey("CONTENT-TYPE"))
}
