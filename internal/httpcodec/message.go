// Package httpcodec implements the HTTP/1.x request parser and response
// writer described in spec.md §4.1, sharing one socket across keep-alive
// turns. It is grounded in original_source/vase/http.py's HttpMessage /
// HttpWriter / HttpParser.
package httpcodec

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/go-vase/vase/internal/netstream"
)

// Header is a case-insensitive, order-preserving, multi-valued header
// collection (spec.md §3 "ordered headers preserving multiplicity").
type Header struct {
	keys   []string // canonical (original-case, first-seen) key per distinct header name
	values map[string][]string
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{values: make(map[string][]string)}
}

func newHeader() *Header { return NewHeader() }

func canon(name string) string { return strings.ToLower(name) }

// Add appends a value, preserving the first-seen case of the name for
// emission and recording insertion order.
func (h *Header) Add(name, value string) {
	key := canon(name)
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, name)
	}
	h.values[key] = append(h.values[key], value)
}

// Get returns the first value for name, or "".
func (h *Header) Get(name string) string {
	vs := h.values[canon(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns all values for name in arrival order.
func (h *Header) Values(name string) []string {
	return h.values[canon(name)]
}

// Names returns header names in first-seen order, one per distinct name.
func (h *Header) Names() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// AsMap returns a snapshot of every header name to its values, for
// callers (e.g. an endpoint.Authorizer) that want a plain map rather
// than Header's ordered view.
func (h *Header) AsMap() map[string][]string {
	out := make(map[string][]string, len(h.values))
	for k, v := range h.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// MultiMap is an ordered, multi-valued string map used for query
// parameters, matching original_source/vase/request.py's MultiDict:
// Get returns the first value; blank values are preserved.
type MultiMap struct {
	keys   []string
	values map[string][]string
}

func newMultiMap() *MultiMap {
	return &MultiMap{values: make(map[string][]string)}
}

func (m *MultiMap) add(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Get returns the first value for key, and whether it was present.
func (m *MultiMap) Get(key string) (string, bool) {
	vs, ok := m.values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// GetDefault returns the first value for key, or def if absent.
func (m *MultiMap) GetDefault(key, def string) string {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// All returns every value for key.
func (m *MultiMap) All(key string) []string { return m.values[key] }

// Request is the immutable-after-parsing request value from spec.md §3.
type Request struct {
	Method   string
	RawURI   string
	Path     string // percent-decoded (spec.md §3); RawURI keeps the original
	RawQuery string
	Version  string
	Header   *Header
	Peer     string
	TLS      bool
	Body     *netstream.LimitedBody

	ctx context.Context

	query    *MultiMap
	cookies  map[string]string
	postForm *MultiMap
}

// Context returns the per-connection request context carrying the
// request ID set by the supervisor (SPEC_FULL.md §3 expansion).
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID returns a context carrying id, retrievable with
// RequestIDFromContext. The supervisor calls this once per accepted
// connection (SPEC_FULL.md §3 expansion) — the Go-native replacement
// for the per-coroutine state original_source/vase implicitly gets
// from asyncio's task-local scoping.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stashed by WithRequestID,
// if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// Query lazily parses and memoizes the query string (spec.md §3).
func (r *Request) Query() *MultiMap {
	if r.query == nil {
		r.query = parseQuery(r.RawQuery)
	}
	return r.query
}

func parseQuery(raw string) *MultiMap {
	m := newMultiMap()
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			k = key
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			v = value
		}
		m.add(k, v)
	}
	return m
}

// Cookies lazily parses the Cookie header into a flat name->value map,
// matching original_source/vase/request.py's COOKIES property.
func (r *Request) Cookies() map[string]string {
	if r.cookies == nil {
		r.cookies = parseCookies(r.Header.Get("Cookie"))
	}
	return r.cookies
}

func parseCookies(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out
}

const formURLEncoded = "application/x-www-form-urlencoded"

// PostForm reads and parses the body as application/x-www-form-urlencoded
// at most once; for any other Content-Type it returns an empty map without
// consuming the body (spec.md §3 "computed at most once").
func (r *Request) PostForm() (*MultiMap, error) {
	if r.postForm != nil {
		return r.postForm, nil
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), formURLEncoded) {
		r.postForm = newMultiMap()
		return r.postForm, nil
	}
	body, err := readAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.postForm = parseQuery(string(body))
	return r.postForm, nil
}

func readAll(b *netstream.LimitedBody) ([]byte, error) {
	out := make([]byte, 0, b.Remaining())
	buf := make([]byte, 4096)
	for {
		n, err := b.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
	}
}
