package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vase/vase/internal/httpcodec"
	"github.com/go-vase/vase/internal/routing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeConn wraps one half of a net.Pipe with a dummy RemoteAddr, since
// net.Pipe's endpoints don't carry real addresses.
type pipeConn struct {
	net.Conn
	remote string
}

func (c pipeConn) RemoteAddr() net.Addr { return dummyAddr(c.remote) }

type dummyAddr string

func (a dummyAddr) Network() string { return "tcp" }
func (a dummyAddr) String() string  { return string(a) }

func newPipe(remote string) (server, client net.Conn) {
	s, c := net.Pipe()
	return pipeConn{Conn: s, remote: remote}, c
}

func TestSupervisor_CallbackRouteResponds(t *testing.T) {
	r := routing.New()
	r.Handle("/hello", []string{"GET"}, NewCallbackHandler(
		func(ctx context.Context, req *httpcodec.Request, start ResponseStarter) [][]byte {
			write := start(200, [][2]string{{"Content-Type", "text/plain"}})
			write([]byte("hi"))
			return nil
		},
	))

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 0, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	_, err := client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	_ = client.Close()
	<-done
}

func TestSupervisor_RequestCarriesPerConnectionRequestID(t *testing.T) {
	r := routing.New()

	var seen string
	r.Handle("/hello", []string{"GET"}, NewCallbackHandler(
		func(ctx context.Context, req *httpcodec.Request, start ResponseStarter) [][]byte {
			id, ok := httpcodec.RequestIDFromContext(req.Context())
			require.True(t, ok)
			seen = id
			start(200, nil)
			return nil
		},
	))

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 0, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	_, err := client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(client)
	_, err = br.ReadString('\n')
	require.NoError(t, err)

	_ = client.Close()
	<-done

	assert.NotEmpty(t, seen)
}

func TestSupervisor_UnmatchedRouteReturns404(t *testing.T) {
	r := routing.New()

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 0, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	_, err := client.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n", status)

	_ = client.Close()
	<-done
}

func TestSupervisor_MalformedRequestClosesWith400(t *testing.T) {
	r := routing.New()

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 0, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	_, err := client.Write([]byte("NOT A REQUEST\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n", status)

	_ = client.Close()
	<-done
}

func TestSupervisor_IdleTimeoutClosesConnection(t *testing.T) {
	r := routing.New()

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 20*time.Millisecond, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not close idle connection in time")
	}

	buf := make([]byte, 1)
	_, err := client.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSupervisor_PanicInCallbackIsRecovered(t *testing.T) {
	r := routing.New()
	r.Handle("/boom", []string{"GET"}, NewCallbackHandler(
		func(ctx context.Context, req *httpcodec.Request, start ResponseStarter) [][]byte {
			panic("kaboom")
		},
	))

	server, client := newPipe("10.0.0.1:5555")
	sup := NewSupervisor(server, r, 0, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		sup.Serve(context.Background())
		close(done)
	}()

	_, err := client.Write([]byte("GET /boom HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking handler should still end the connection")
	}

	_ = client.Close()
}
