package netstream

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine_CRLF(t *testing.T) {
	r := New(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), nil)
	ctx := context.Background()

	line, err := r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1", string(line))

	line, err = r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Host: x", string(line))

	line, err = r.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", string(line))
}

func TestReadLine_CleanEOF(t *testing.T) {
	r := New(strings.NewReader(""), nil)
	_, err := r.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadExact_TouchCallback(t *testing.T) {
	touched := 0
	r := New(strings.NewReader("hello world"), func() { touched++ })

	got, err := r.ReadExact(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Greater(t, touched, 0)
}

func TestReadExact_UnexpectedEOF(t *testing.T) {
	r := New(strings.NewReader("ab"), nil)
	_, err := r.ReadExact(context.Background(), 5)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestLimitedBody_DrainExhaustsRemaining(t *testing.T) {
	r := New(strings.NewReader("0123456789REST"), nil)
	body := NewLimitedBody(context.Background(), r, 10)

	buf := make([]byte, 4)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 6, body.Remaining())

	require.NoError(t, body.Drain(context.Background()))
	assert.Equal(t, 0, body.Remaining())

	rest, err := r.ReadExact(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "REST", string(rest))
}

func TestLimitedBody_ZeroLength(t *testing.T) {
	r := New(strings.NewReader("anything"), nil)
	body := NewLimitedBody(context.Background(), r, 0)
	n, err := body.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_OverNetPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Write([]byte("ping\r\n"))
	}()

	r := New(server, nil)
	server.SetReadDeadline(time.Now().Add(time.Second))
	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ping", string(line))
	<-done
}
