// Package server provides the connection supervisor and accept loop
// described in spec.md §4.3, grounded on
// original_source/vase/webserver.py's WebServer and
// original_source/vase/handlers.py's per-route RequestHandler
// subclasses, with the goroutine-per-connection model spec.md §9
// sanctions in place of the asyncio event loop.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-vase/vase/internal/httpcodec"
	"github.com/go-vase/vase/internal/netstream"
	"github.com/go-vase/vase/internal/routing"
	"github.com/go-vase/vase/internal/sockjs"
)

// timeoutHandler is satisfied by *ws.Handler once a connection has been
// upgraded, letting the idle timer switch from "close on timeout" to
// "ping on timeout" without the supervisor importing ws-specific types
// into its timer plumbing.
type timeoutHandler interface {
	OnTimeout() bool
}

// Supervisor owns one accepted net.Conn and runs its HTTP keep-alive
// loop, handing off to a WebSocket receive loop on upgrade (spec.md
// §4.3).
type Supervisor struct {
	conn           net.Conn
	router         *routing.Router
	keepAlive      time.Duration
	maxHeaderBytes int
	logger         *slog.Logger
}

// NewSupervisor returns a Supervisor for conn. keepAlive <= 0 disables
// the idle timer entirely (every turn ends the connection, per spec.md
// §4.3). maxHeaderBytes bounds the request line and header block
// (internal/config.Config's MaxHeaderBytes, spec.md §6); <= 0 leaves it
// unbounded.
func NewSupervisor(conn net.Conn, router *routing.Router, keepAlive time.Duration, maxHeaderBytes int, logger *slog.Logger) *Supervisor {
	return &Supervisor{conn: conn, router: router, keepAlive: keepAlive, maxHeaderBytes: maxHeaderBytes, logger: logger}
}

// Serve is the goroutine entry point started per accepted connection.
func (s *Supervisor) Serve(ctx context.Context) {
	defer s.conn.Close()

	connID := uuid.NewString()
	ctx = httpcodec.WithRequestID(ctx, connID)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked",
				slog.String("request_id", connID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var mu sync.Mutex
	var onTimeout timeoutHandler
	var timer *time.Timer

	if s.keepAlive > 0 {
		timer = time.AfterFunc(s.keepAlive, func() {
			mu.Lock()
			h := onTimeout
			mu.Unlock()
			if h != nil && h.OnTimeout() {
				timer.Reset(s.keepAlive)
				return
			}
			s.conn.Close()
		})
		defer timer.Stop()
	}

	touch := func() {
		if timer != nil {
			timer.Reset(s.keepAlive)
		}
	}
	reader := netstream.New(s.conn, touch)
	writer := httpcodec.NewWriter(s.conn)
	peer := s.conn.RemoteAddr().String()

	for {
		req, err := httpcodec.ParseRequest(ctx, reader, peer, false, s.maxHeaderBytes)
		if err != nil {
			var badReq *httpcodec.BadRequestError
			if errors.As(err, &badReq) {
				_ = writer.WriteSimpleError(400, badReq.Reason)
			}
			return
		}
		req = req.WithContext(ctx)

		route, params, matchErr := s.router.Match(req.Method, req.Path)
		if matchErr != nil {
			_ = writer.WriteSimpleError(404, "404 Not Found!\n")
			if s.keepAlive <= 0 || !req.KeepAlive() {
				return
			}
			_ = req.Body.Drain(ctx)
			writer.Restore()
			continue
		}

		switch h := route.Handler.(type) {
		case *CallbackHandler:
			if err := h.Serve(ctx, req, writer); err != nil {
				return
			}

		case *WebSocketRoute:
			wsHandler, ok, err := h.upgrade(ctx, req, writer)
			if err != nil {
				return
			}
			if !ok {
				if s.keepAlive <= 0 || !req.KeepAlive() {
					return
				}
				_ = req.Body.Drain(ctx)
				writer.Restore()
				continue
			}
			mu.Lock()
			onTimeout = wsHandler
			mu.Unlock()
			_ = wsHandler.Serve(ctx, reader)
			return

		case *sockjs.Handler:
			wsHandler, err := h.Serve(ctx, req, writer, params["tail"])
			if err != nil {
				return
			}
			if wsHandler != nil {
				mu.Lock()
				onTimeout = wsHandler
				mu.Unlock()
				_ = wsHandler.Serve(ctx, reader)
				return
			}

		default:
			_ = writer.WriteSimpleError(500, "misconfigured route\n")
		}

		if s.keepAlive <= 0 || !req.KeepAlive() {
			return
		}
		if err := req.Body.Drain(ctx); err != nil {
			return
		}
		writer.Restore()
	}
}
