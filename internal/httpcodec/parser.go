package httpcodec

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-vase/vase/internal/netstream"
)

// ParseRequest reads one request from r, or returns io.EOF for a clean
// connection close before any bytes of a new request arrived (spec.md
// §4.1 "Parse contract"). maxHeaderBytes bounds the combined size of
// the request line and header block (internal/config.Config's
// MaxHeaderBytes, spec.md §6); <= 0 leaves it unbounded, for callers
// with no configured limit.
func ParseRequest(ctx context.Context, r *netstream.Reader, peer string, tls bool, maxHeaderBytes int) (*Request, error) {
	line, err := r.ReadLine(ctx)
	if err != nil {
		return nil, err
	}

	headerBytes := len(line)
	if maxHeaderBytes > 0 && headerBytes > maxHeaderBytes {
		return nil, badRequest("request line exceeds configured header limit")
	}

	parts := strings.Split(string(line), " ")
	if len(parts) != 3 {
		return nil, badRequest("malformed request line")
	}
	method, rawURI, version := parts[0], parts[1], parts[2]
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return nil, badRequest("unsupported http version " + version)
	}

	header := newHeader()
	lastName := ""
	for {
		hl, err := r.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, badRequest("connection closed mid-headers")
			}
			return nil, err
		}
		if len(hl) == 0 {
			break
		}
		headerBytes += len(hl)
		if maxHeaderBytes > 0 && headerBytes > maxHeaderBytes {
			return nil, badRequest("header block exceeds configured limit")
		}
		if hl[0] == ' ' || hl[0] == '\t' {
			if lastName == "" {
				return nil, badRequest("continuation line before any header")
			}
			vals := header.values[canon(lastName)]
			vals[len(vals)-1] += " " + strings.TrimSpace(string(hl))
			continue
		}
		name, value, ok := strings.Cut(string(hl), ":")
		if !ok {
			return nil, badRequest("malformed header line")
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			return nil, badRequest("malformed header line")
		}
		header.Add(name, value)
		lastName = name
	}

	rawPath, rawQuery, _ := strings.Cut(rawURI, "?")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, badRequest("malformed percent-encoding in request path")
	}

	contentLength := 0
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			contentLength = n
		}
	}

	req := &Request{
		Method:   method,
		RawURI:   rawURI,
		Path:     path,
		RawQuery: rawQuery,
		Version:  version,
		Header:   header,
		Peer:     peer,
		TLS:      tls,
		Body:     netstream.NewLimitedBody(ctx, r, contentLength),
	}
	return req, nil
}

// KeepAlive reports whether the connection should remain open after this
// request, per spec.md §4.1 "Keep-alive", ignoring the configured
// keep-alive timeout (the supervisor applies that separately).
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(r.Header.Get("Connection"))
	if r.Version == "HTTP/1.0" {
		return conn == "keep-alive"
	}
	return conn != "close"
}
