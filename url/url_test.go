package url

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAbsoluteURL(t *testing.T) {
	u, err := Parse("http://example.com/path?a=1&b=2#frag")
	require.NoError(t, err)
	require.Equal(t, "http", u.Scheme)
	require.Equal(t, "example.com", u.Host)
	require.Equal(t, "/path", u.Path)
	require.Equal(t, "frag", u.Fragment)
}

func TestParseRequestURIPathWithQuery(t *testing.T) {
	u, err := ParseRequestURI("/x?a=1")
	require.NoError(t, err)
	require.Equal(t, "/x", u.Path)
}

func TestParseQuery(t *testing.T) {
	v, err := ParseQuery("a=1&b=two%20words&c")
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, v["a"])
	require.Equal(t, []string{"two words"}, v["b"])
	require.Equal(t, []string{""}, v["c"])
}

func TestQueryEscapeUnescapeRoundTrip(t *testing.T) {
	s := "a b+c/d"
	esc := QueryEscape(s)
	got, err := QueryUnescape(esc)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestValidHostByte(t *testing.T) {
	require.True(t, ValidHostByte('a'))
	require.True(t, ValidHostByte('-'))
	require.False(t, ValidHostByte(' '))
	require.False(t, ValidHostByte('\r'))
}

func TestBasicAuth(t *testing.T) {
	require.Equal(t, "dXNlcjpwYXNz", BasicAuth("user", "pass"))
}
