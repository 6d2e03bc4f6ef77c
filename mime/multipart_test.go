package mime

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipartWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewMultipartWriter(&buf)

	require.NoError(t, w.WriteField("name", "Gopher"))

	fw, err := w.CreateFormFile("file", "hello.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello from a part"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	r := NewMultipartReader(&buf, w.Boundary())

	p1, err := r.NextPart()
	require.NoError(t, err)
	require.Equal(t, "name", p1.FormName())
	v1, err := io.ReadAll(p1)
	require.NoError(t, err)
	require.Equal(t, "Gopher", string(v1))

	p2, err := r.NextPart()
	require.NoError(t, err)
	require.Equal(t, "file", p2.FormName())
	require.Equal(t, "hello.txt", p2.FileName())
	v2, err := io.ReadAll(p2)
	require.NoError(t, err)
	require.Equal(t, "hello from a part", string(v2))

	_, err = r.NextPart()
	require.ErrorIs(t, err, io.EOF)
}

func TestMIMEParseMediaType(t *testing.T) {
	mediaType, params, err := MIMEParseMediaType("multipart/form-data; boundary=xyz")
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)
	require.Equal(t, "xyz", params["boundary"])
}
