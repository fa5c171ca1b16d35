package ws

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/httpcodec"
)

// magic is the GUID RFC 6455 §1.3 appends to Sec-WebSocket-Key before
// hashing.
const magic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Accept computes the Sec-WebSocket-Accept value for key.
func Accept(key string) string {
	sum := sha1.Sum([]byte(key + magic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// IsUpgradeRequest reports whether req carries the headers spec.md
// §4.4 requires for a WebSocket handshake: Upgrade: websocket,
// Connection containing "upgrade" (comma-separated, case-insensitive),
// Sec-WebSocket-Version: 13, and a non-empty Sec-WebSocket-Key.
func IsUpgradeRequest(req *httpcodec.Request) bool {
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return false
	}
	if !containsToken(req.Header.Get("Connection"), "upgrade") {
		return false
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return false
	}
	return req.Header.Get("Sec-WebSocket-Key") != ""
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// HandshakeResult carries the accept key for a validated handshake.
type HandshakeResult struct {
	AcceptKey string
}

// ValidateHandshake checks the Sec-WebSocket-Key and, if authz is
// non-nil, consults it before allowing the upgrade (spec.md §4.4
// "Handshake"; §9's authorize_request Open Question is resolved by
// calling authz here, before any session/handler state exists). On
// failure it writes the appropriate status directly to w and returns
// ok=false; the caller must not attempt the upgrade in that case.
func ValidateHandshake(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, authz endpoint.Authorizer) (*HandshakeResult, bool) {
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		_ = w.WriteSimpleError(400, "bad request: missing Sec-WebSocket-Key")
		return nil, false
	}
	if authz != nil && !authz.AuthorizeRequest(ctx, req.Peer, req.Header.AsMap()) {
		w.SetStatus(401)
		_, _ = w.WriteBody(nil)
		_ = w.Flush()
		return nil, false
	}
	return &HandshakeResult{AcceptKey: Accept(key)}, true
}

// Upgrade performs a complete WebSocket handshake over a parsed HTTP
// request: validates it (via authz, if non-nil), commits the 101
// response, wires a FrameWriter to the connection's raw sink, delivers
// on_connect exactly once (matching
// original_source/vase/handlers.py's WebSocketHandler._switch_protocol
// calling on_connect immediately after the protocol switch), and
// returns a Handler ready for Serve. ok is false when the handshake was
// rejected; a terminal HTTP response has already been written in that
// case.
func Upgrade(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, authz endpoint.Authorizer, ep endpoint.Base) (h *Handler, ok bool, err error) {
	res, ok := ValidateHandshake(ctx, req, w, authz)
	if !ok {
		return nil, false, nil
	}
	if err := WriteSwitchingProtocols(w, res); err != nil {
		return nil, false, err
	}
	fw := NewFrameWriter(w.RawWriter())
	ep.OnConnect(ctx, fw)
	return NewHandler(ep, fw), true, nil
}

// WriteSwitchingProtocols commits the 101 response headers for res.
func WriteSwitchingProtocols(w *httpcodec.Writer, res *HandshakeResult) error {
	w.SetStatusLine("101 Switching Protocols")
	w.SetHeader("Upgrade", "websocket")
	w.SetHeader("Connection", "Upgrade")
	w.SetHeader("Sec-WebSocket-Accept", res.AcceptKey)
	if _, err := w.WriteBody(nil); err != nil {
		return err
	}
	return w.Flush()
}
