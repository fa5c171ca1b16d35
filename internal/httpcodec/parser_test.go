package httpcodec

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vase/vase/internal/netstream"
)

func parse(t *testing.T, raw string) (*Request, error) {
	t.Helper()
	r := netstream.New(strings.NewReader(raw), nil)
	return ParseRequest(context.Background(), r, "127.0.0.1:9999", false, 0)
}

func parseBounded(t *testing.T, raw string, maxHeaderBytes int) (*Request, error) {
	t.Helper()
	r := netstream.New(strings.NewReader(raw), nil)
	return ParseRequest(context.Background(), r, "127.0.0.1:9999", false, maxHeaderBytes)
}

func TestParseRequest_Basic(t *testing.T) {
	req, err := parse(t, "GET /foo?a=1&a=2 HTTP/1.1\r\nHost: example\r\nX-Trace: a\r\nX-Trace: b\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/foo", req.Path)
	assert.Equal(t, "a=1&a=2", req.RawQuery)
	assert.Equal(t, "example", req.Header.Get("Host"))
	assert.Equal(t, []string{"a", "b"}, req.Header.Values("X-Trace"))

	v, ok := req.Query().Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"1", "2"}, req.Query().All("a"))
}

func TestParseRequest_CleanEOF(t *testing.T) {
	_, err := parse(t, "")
	assert.Error(t, err)
}

func TestParseRequest_MalformedRequestLine(t *testing.T) {
	_, err := parse(t, "GET /foo\r\nHost: x\r\n\r\n")
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_UnsupportedVersion(t *testing.T) {
	_, err := parse(t, "GET / HTTP/2.0\r\nHost: x\r\n\r\n")
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_MalformedHeaderLine(t *testing.T) {
	_, err := parse(t, "GET / HTTP/1.1\r\nNotAHeader\r\n\r\n")
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_LeadingContinuation(t *testing.T) {
	_, err := parse(t, "GET / HTTP/1.1\r\n Leading: continuation\r\n\r\n")
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_HeaderContinuation(t *testing.T) {
	req, err := parse(t, "GET / HTTP/1.1\r\nX-Long: part-one\r\n continued\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "part-one continued", req.Header.Get("X-Long"))
}

func TestParseRequest_ContentLengthZeroVsMissing(t *testing.T) {
	req, err := parse(t, "POST / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, 0, req.Body.Remaining())

	req2, err := parse(t, "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, 0, req2.Body.Remaining())
}

func TestParseRequest_NonIntegerContentLengthTreatedAsZero(t *testing.T) {
	req, err := parse(t, "POST / HTTP/1.1\r\nContent-Length: nope\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, 0, req.Body.Remaining())
}

func TestParseRequest_BodyBoundToContentLength(t *testing.T) {
	req, err := parse(t, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloEXTRA")
	require.NoError(t, err)
	assert.Equal(t, 5, req.Body.Remaining())
	buf := make([]byte, 10)
	n, err := req.Body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestRequest_KeepAlive(t *testing.T) {
	req10, _ := parse(t, "GET / HTTP/1.0\r\n\r\n")
	assert.False(t, req10.KeepAlive())

	req10ka, _ := parse(t, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	assert.True(t, req10ka.KeepAlive())

	req11, _ := parse(t, "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, req11.KeepAlive())

	req11close, _ := parse(t, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	assert.False(t, req11close.KeepAlive())
}

func TestRequest_Cookies(t *testing.T) {
	req, err := parse(t, "GET / HTTP/1.1\r\nCookie: a=1; b=2\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, req.Cookies())
}

func TestRequest_PostForm(t *testing.T) {
	req, err := parse(t, "POST / HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 7\r\n\r\na=1&b=2")
	require.NoError(t, err)
	form, err := req.PostForm()
	require.NoError(t, err)
	v, _ := form.Get("a")
	assert.Equal(t, "1", v)
}

func TestRequest_PostFormIgnoredForOtherContentType(t *testing.T) {
	req, err := parse(t, "POST / HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 7\r\n\r\n{\"a\":1}")
	require.NoError(t, err)
	form, err := req.PostForm()
	require.NoError(t, err)
	_, ok := form.Get("a")
	assert.False(t, ok)
}

func TestParseRequest_PathIsPercentDecoded(t *testing.T) {
	req, err := parse(t, "GET /a%20b/c%2Fd HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "/a b/c/d", req.Path)
}

func TestParseRequest_MalformedPercentEncodingIs400(t *testing.T) {
	_, err := parse(t, "GET /%zz HTTP/1.1\r\nHost: x\r\n\r\n")
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_RequestLineOverHeaderLimitIs400(t *testing.T) {
	_, err := parseBounded(t, "GET /foo HTTP/1.1\r\nHost: x\r\n\r\n", 10)
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_HeaderBlockOverLimitIs400(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Long: " + strings.Repeat("a", 100) + "\r\n\r\n"
	_, err := parseBounded(t, raw, 32)
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
}

func TestParseRequest_UnboundedWhenMaxHeaderBytesIsZero(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Long: " + strings.Repeat("a", 100) + "\r\n\r\n"
	_, err := parseBounded(t, raw, 0)
	require.NoError(t, err)
}
