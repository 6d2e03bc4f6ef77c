package sniff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectContentTypeHTML(t *testing.T) {
	require.Equal(t, "text/html; charset=utf-8", DetectContentType([]byte("<!DOCTYPE HTML><html></html>")))
}

func TestDetectContentTypePNG(t *testing.T) {
	sig := []byte("\x89PNG\r\n\x1A\n rest of file")
	require.Equal(t, "image/png", DetectContentType(sig))
}

func TestDetectContentTypeFallsBackToOctetStream(t *testing.T) {
	require.Equal(t, "application/octet-stream", DetectContentType([]byte{0x00, 0x01, 0x02}))
}

func TestDetectContentTypeLeadingWhitespaceStillTextPlain(t *testing.T) {
	require.Equal(t, "text/plain; charset=utf-8", DetectContentType([]byte("   \thello world")))
}
