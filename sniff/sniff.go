/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package sniff implements the same small subset of the WHATWG MIME
// sniffing algorithm net/http uses to pick a default Content-Type when a
// handler writes a body without setting one explicitly.
package sniff

type sig interface {
	// match returns the MIME type of data, or "" if unknown.
	match(data []byte, firstNonWS int) string
}

type exactSig struct {
	sig []byte
	ct  string
}

type textSig struct{}

// sniffSignatures is the list of signatures, in priority order: the first
// match wins.
var sniffSignatures = []sig{
	&exactSig{sig: []byte("<!DOCTYPE HTML"), ct: "text/html; charset=utf-8"},
	&exactSig{sig: []byte("<HTML"), ct: "text/html; charset=utf-8"},
	&exactSig{sig: []byte("<?xml"), ct: "text/xml; charset=utf-8"},
	&exactSig{sig: []byte("%PDF-"), ct: "application/pdf"},
	&exactSig{sig: []byte("%!PS-Adobe-"), ct: "application/postscript"},
	&exactSig{sig: []byte("\xFF\xD8\xFF"), ct: "image/jpeg"},
	&exactSig{sig: []byte("\x89PNG\r\n\x1A\n"), ct: "image/png"},
	&exactSig{sig: []byte("GIF87a"), ct: "image/gif"},
	&exactSig{sig: []byte("GIF89a"), ct: "image/gif"},
	&exactSig{sig: []byte("RIFF"), ct: "application/octet-stream"}, // RIFF containers (WEBP included) are not told apart
	&exactSig{sig: []byte{0x1F, 0x8B, 0x08}, ct: "application/x-gzip"},
	&exactSig{sig: []byte("PK\x03\x04"), ct: "application/zip"},
	textSig{},
}

const sniffLen = 512

// DetectContentType implements the content-sniffing algorithm: it examines
// the beginning of data to determine the Content-Type that best describes
// it, defaulting to "application/octet-stream".
func DetectContentType(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	firstNonWS := 0
	for ; firstNonWS < len(data) && isWS(data[firstNonWS]); firstNonWS++ {
	}
	for _, s := range sniffSignatures {
		if ct := s.match(data, firstNonWS); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

func isWS(b byte) bool {
	switch b {
	case '\t', '\n', '\x0c', '\r', ' ':
		return true
	}
	return false
}
