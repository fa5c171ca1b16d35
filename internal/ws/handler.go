package ws

import (
	"context"
	"errors"

	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/netstream"
)

// Handler drives the post-upgrade receive loop for one connection
// (spec.md §4.4 "Post-upgrade receive loop"), grounded on
// original_source/vase/websocket.py's WebSocketProtocol._parse_messages.
type Handler struct {
	ep endpoint.Base
	fw *FrameWriter
}

// NewHandler returns a handler delivering messages to ep and writing
// frames through fw.
func NewHandler(ep endpoint.Base, fw *FrameWriter) *Handler {
	return &Handler{ep: ep, fw: fw}
}

// OnTimeout is invoked by the connection supervisor when the idle
// timer fires in WebSocket mode; it sends a ping and asks to be
// rearmed (spec.md §4.3, §4.4 "Idle").
func (h *Handler) OnTimeout() bool {
	_ = h.fw.Ping(nil)
	return true
}

// Serve runs the receive loop until the stream ends, a protocol format
// error occurs, or the endpoint's OnMessage returns an error. It always
// calls ep.OnClose exactly once before returning, centralizing the
// on_close delivery the Python source splits between the message loop
// (clean EOF) and connection_lost (every other reason) — here one
// call site covers both, still satisfying spec.md §5's "on_close
// follows the last on_message the endpoint will observe".
func (h *Handler) Serve(ctx context.Context, r *netstream.Reader) error {
	rs := NewReassembler(r)
	var terminal error

loop:
	for {
		msg, err := rs.Next(ctx)
		if err != nil {
			terminal = err
			break loop
		}
		if msg == nil {
			terminal = nil
			break loop
		}

		switch msg.Opcode {
		case OpClose:
			_ = h.fw.Close(0, "")
			terminal = nil
			break loop
		case OpPing:
			if err := h.fw.Pong(msg.Payload); err != nil {
				terminal = err
				break loop
			}
		case OpPong:
			// silently accepted
		case OpText, OpBinary:
			if err := h.ep.OnMessage(ctx, msg.Payload); err != nil {
				terminal = err
				break loop
			}
		default:
			// unreachable: ParseFrame already rejects unknown opcodes
		}
	}

	var formatErr *FormatError
	isFormat := errors.As(terminal, &formatErr)

	h.ep.OnClose(ctx, terminal)

	if isFormat {
		return terminal
	}
	return nil
}
