package httpserver

import (
	"io"
	"strings"

	"github.com/badu/aio/hdr"
	"github.com/badu/aio/mime"
	"github.com/badu/aio/url"
)

// post implements spec.md §4.5: the memoized, lazily-computed POST table.
// It is only populated for {POST, PATCH, PUT, DELETE}.
func (req *Request) post(maxBody int64) (hdr.Header, error) {
	if req.postForm != nil || req.postErr != nil {
		return req.postForm, req.postErr
	}

	switch req.Method {
	case "POST", "PATCH", "PUT", "DELETE":
	default:
		req.postForm = hdr.Header{}
		return req.postForm, nil
	}

	switch {
	case req.Flags[UrlencodedForm]:
		req.postForm, req.postErr = parseURLEncodedBody(req, maxBody)
	case req.Flags[MultipartForm]:
		req.postForm, req.postErr = parseMultipartBody(req, maxBody)
	case req.Flags[BoundBody] || req.Flags[UnboundBody]:
		req.postErr = statusErrorf(400, "unsupported request body")
	default:
		req.postForm = hdr.Header{}
	}
	return req.postForm, req.postErr
}

// parseURLEncodedBody reads the full body and decodes it as
// application/x-www-form-urlencoded: split on '&', then '=' (max one
// split), URL-decode key and value, skip empty keys.
func parseURLEncodedBody(req *Request, maxBody int64) (hdr.Header, error) {
	br, err := getBodyReader(req, maxBody)
	if err != nil {
		return nil, err
	}
	defer br.Close()
	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	form := hdr.Header{}
	for _, pair := range strings.Split(string(raw), "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		key, err := url.QueryUnescape(kv[0])
		if err != nil || key == "" {
			continue
		}
		val := ""
		if len(kv) == 2 {
			if val, err = url.QueryUnescape(kv[1]); err != nil {
				continue
			}
		}
		form[key] = append(form[key], val)
	}
	return form, nil
}

// parseMultipartBody obtains the boundary from Content-Type and drives the
// kept mime package (the external multipart collaborator named in spec.md
// §1) until end-of-message, contributing (name, body-as-text) per part.
func parseMultipartBody(req *Request, maxBody int64) (hdr.Header, error) {
	_, params, err := mime.MIMEParseMediaType(req.Header.Get(hdr.ContentType))
	if err != nil {
		return nil, statusErrorf(400, "malformed Content-Type: %v", err)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, statusErrorf(400, "multipart request missing boundary")
	}

	br, err := getBodyReader(req, maxBody)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	reader := mime.NewMultipartReader(br, boundary)
	form := hdr.Header{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, statusErrorf(400, "malformed multipart body: %v", err)
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, statusErrorf(400, "malformed multipart part: %v", err)
		}
		name := part.FormName()
		if name == "" {
			continue
		}
		form[name] = append(form[name], string(data))
	}
	return form, nil
}

// PostForm returns req's lazily-computed, memoized POST table.
func (req *Request) PostForm(maxBody int64) (hdr.Header, error) {
	return req.post(maxBody)
}
