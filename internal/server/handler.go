package server

import (
	"context"

	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/httpcodec"
	"github.com/go-vase/vase/internal/ws"
)

// ResponseStarter begins a callback's response, mirroring WSGI-style
// start_response: it commits the status and headers and returns a
// write function for the body, grounded on
// original_source/vase/handlers.py's CallbackRouteHandler.handle.
type ResponseStarter func(status int, headers [][2]string) func([]byte)

// Callback is the HTTP request handler shape a CallbackHandler route
// carries. It returns the body chunks to write after calling start.
type Callback func(ctx context.Context, req *httpcodec.Request, start ResponseStarter) [][]byte

// CallbackHandler adapts a Callback to the connection supervisor's
// per-route dispatch (spec.md §4.6).
type CallbackHandler struct {
	cb Callback
}

// NewCallbackHandler wraps cb.
func NewCallbackHandler(cb Callback) *CallbackHandler {
	return &CallbackHandler{cb: cb}
}

// Serve invokes the callback and writes its response.
func (h *CallbackHandler) Serve(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer) error {
	start := func(status int, headers [][2]string) func([]byte) {
		w.SetStatus(status)
		for _, kv := range headers {
			w.AddHeader(kv[0], kv[1])
		}
		_ = w.Commit()
		return func(p []byte) {
			_, _ = w.WriteBody(p)
		}
	}

	chunks := h.cb(ctx, req, start)
	for _, c := range chunks {
		if _, err := w.WriteBody(c); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WebSocketRoute marks a route as a plain top-level WebSocket endpoint
// (as opposed to one reached through a SockJS mount). newEndpoint
// builds a fresh endpoint.Base per accepted connection; authorizer may
// be nil.
type WebSocketRoute struct {
	NewEndpoint func() endpoint.Base
	Authorizer  endpoint.Authorizer
}

// NewWebSocketRoute returns a WebSocketRoute for router.Handle.
func NewWebSocketRoute(newEndpoint func() endpoint.Base, authorizer endpoint.Authorizer) *WebSocketRoute {
	return &WebSocketRoute{NewEndpoint: newEndpoint, Authorizer: authorizer}
}

// upgrade performs the handshake for a WebSocketRoute match.
func (rt *WebSocketRoute) upgrade(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer) (*ws.Handler, bool, error) {
	return ws.Upgrade(ctx, req, w, rt.Authorizer, rt.NewEndpoint())
}
