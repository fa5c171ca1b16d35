package sockjs

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/httpcodec"
	"github.com/go-vase/vase/internal/ws"
)

// EndpointFactory builds a fresh endpoint instance for a new session,
// mirroring spec.md §4.5's "one endpoint instance per session".
type EndpointFactory func() endpoint.Base

// Handler dispatches requests under a SockJS-registered route's prefix
// to the welcome/info/iframe endpoints, the polling transports, or a
// raw WebSocket upgrade, grounded on
// original_source/vase/sockjs/__init__.py's SockJsHandler.
type Handler struct {
	newEndpoint     EndpointFactory
	authorizer      endpoint.Authorizer
	forbidWebSocket bool
	store           *Store
}

// NewHandler returns a Handler serving endpoints built by newEndpoint.
// authorizer may be nil. forbidWebSocket disables both the native
// /websocket sub-path and the info endpoint's advertised capability
// (spec.md §4.5 "forbid_websocket").
func NewHandler(newEndpoint EndpointFactory, authorizer endpoint.Authorizer, forbidWebSocket bool) *Handler {
	return &Handler{
		newEndpoint:     newEndpoint,
		authorizer:      authorizer,
		forbidWebSocket: forbidWebSocket,
		store:           NewStore(),
	}
}

var transportHandlers = map[string]bool{
	"xhr":           true,
	"xhr_send":      true,
	"xhr_streaming": true,
	"eventsource":   true,
	"htmlfile":      true,
	"jsonp":         true,
	"jsonp_send":    true,
}

var initiatesSession = map[string]bool{
	"xhr":           true,
	"xhr_streaming": true,
	"eventsource":   true,
	"htmlfile":      true,
	"jsonp":         true,
}

// Serve dispatches one request for tail, the portion of the path
// captured after the route's SockJS prefix. It returns a non-nil
// *ws.Handler only when the request is a native WebSocket upgrade
// (the top-level "/websocket" sub-path); the caller (the connection
// supervisor) must then switch the connection into raw-frame mode and
// run Handler.Serve against it. Every other case is fully handled by
// the time Serve returns.
func (h *Handler) Serve(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, tail string) (*ws.Handler, error) {
	switch {
	case tail == "" || tail == "/":
		writeWelcome(w)
		return nil, nil
	case tail == "/info":
		serveInfo(req, w, !h.forbidWebSocket)
		return nil, nil
	case iframePathRe.MatchString(tail):
		serveIFrame(req, w)
		return nil, nil
	case tail == "/websocket":
		if h.forbidWebSocket {
			notFound(w)
			return nil, nil
		}
		return h.serveRawWebSocket(ctx, req, w)
	}

	parts := strings.Split(strings.TrimPrefix(tail, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		notFound(w)
		return nil, nil
	}
	server, session, transport := parts[0], parts[1], parts[2]
	if strings.Contains(server, ".") || strings.Contains(session, ".") {
		notFound(w)
		return nil, nil
	}
	if !transportHandlers[transport] {
		notFound(w)
		return nil, nil
	}

	return nil, h.handleTransport(ctx, req, w, session, transport)
}

func (h *Handler) serveRawWebSocket(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer) (*ws.Handler, error) {
	wsHandler, ok, err := ws.Upgrade(ctx, req, w, h.authorizer, h.newEndpoint())
	if err != nil || !ok {
		return nil, err
	}
	return wsHandler, nil
}

func (h *Handler) handleTransport(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sessionID, transport string) error {
	if req.Method == "OPTIONS" {
		methods := "POST"
		if transport == "htmlfile" || transport == "jsonp" {
			methods = "GET"
		}
		writeCORSPreflight(w, req, methods)
		return nil
	}

	sess, ok := h.store.Get(sessionID)
	if !ok {
		if !initiatesSession[transport] {
			notFound(w)
			return nil
		}
		if h.authorizer != nil && !h.authorizer.AuthorizeRequest(ctx, req.Peer, req.Header.AsMap()) {
			w.SetStatus(401)
			_, _ = w.WriteBody(nil)
			_ = w.Flush()
			return nil
		}
		sess, _ = h.store.GetOrCreate(sessionID, h.newEndpoint())
	}

	dispatchTransport(ctx, req, w, sess, transport)
	return nil
}

func dispatchTransport(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session, transport string) {
	switch transport {
	case "xhr":
		serveXHR(ctx, req, w, sess)
	case "xhr_send":
		serveXHRSend(ctx, req, w, sess, "")
	case "xhr_streaming":
		serveXHRStreaming(ctx, req, w, sess)
	case "eventsource":
		serveEventSource(ctx, req, w, sess)
	case "htmlfile":
		serveHTMLFile(ctx, req, w, sess)
	case "jsonp":
		serveJSONP(ctx, req, w, sess)
	case "jsonp_send":
		serveXHRSend(ctx, req, w, sess, "d")
	}
}

func notFound(w *httpcodec.Writer) {
	body := []byte("404 Not Found!\n")
	w.SetStatus(404)
	w.SetHeader("Content-Type", "text/plain; charset=UTF-8")
	w.SetHeader("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.WriteBody(body)
	_ = w.Flush()
}
