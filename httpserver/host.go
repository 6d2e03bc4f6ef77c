package httpserver

import "github.com/badu/aio/url"

// ValidHostHeader reports whether host is a valid Host header field value
// per RFC 7230 §5.4 (either a reg-name/IPv4, or "[" IPv6 "]", each
// optionally followed by ":" port). The corpus's own url package carries
// the validHostByte lookup table this check is built on (its doc comment
// already points at "the validHostHeader comment") but never shipped the
// function itself, so it is authored fresh here rather than imported.
func ValidHostHeader(host string) bool {
	if host == "" {
		return true
	}
	if len(host) > 0 && host[0] == '[' {
		i := indexByte(host, ']')
		if i < 0 {
			return false
		}
		for j := 1; j < i; j++ {
			if !url.ValidHostByte(host[j]) && host[j] != ':' {
				return false
			}
		}
		rest := host[i+1:]
		if rest == "" {
			return true
		}
		if rest[0] != ':' {
			return false
		}
		return validPort(rest[1:])
	}
	colon := -1
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			colon = i
			break
		}
	}
	hostPart := host
	if colon >= 0 {
		hostPart = host[:colon]
	}
	for i := 0; i < len(hostPart); i++ {
		if !url.ValidHostByte(hostPart[i]) {
			return false
		}
	}
	if colon >= 0 {
		return validPort(host[colon+1:])
	}
	return true
}

func validPort(p string) bool {
	if p == "" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
