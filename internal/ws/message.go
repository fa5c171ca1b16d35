package ws

import (
	"context"
	"unicode/utf8"

	"github.com/go-vase/vase/internal/netstream"
)

// Message is one reassembled application-level message: either a
// control frame (yielded immediately) or a concatenated text/binary
// message (spec.md §4.4 "Message reassembly").
type Message struct {
	Opcode  OpCode
	Payload []byte
}

// Reassembler accumulates non-control frames for the in-progress
// message on a connection, grounded on
// original_source/vase/websocket.py's WebSocketParser.get_message.
type Reassembler struct {
	r       *netstream.Reader
	pending []byte
	opcode  OpCode
	active  bool
}

// NewReassembler returns a reassembler reading frames from r.
func NewReassembler(r *netstream.Reader) *Reassembler {
	return &Reassembler{r: r}
}

// Next returns the next complete message: a control frame as soon as
// it arrives, or a fully reassembled text/binary message once its
// final (fin=1) frame arrives. A nil Message with a nil error means
// the stream ended cleanly.
func (rs *Reassembler) Next(ctx context.Context) (*Message, error) {
	for {
		frame, err := ParseFrame(ctx, rs.r)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			return nil, nil
		}

		if frame.Opcode.IsControl() {
			return &Message{Opcode: frame.Opcode, Payload: frame.Payload}, nil
		}

		if !rs.active {
			if frame.Opcode != OpText && frame.Opcode != OpBinary {
				return nil, formatErr("first data frame must be text or binary")
			}
			rs.active = true
			rs.opcode = frame.Opcode
			rs.pending = append(rs.pending[:0], frame.Payload...)
		} else {
			if frame.Opcode != OpContinuation {
				return nil, formatErr("frames belonging to different messages cannot be interleaved")
			}
			rs.pending = append(rs.pending, frame.Payload...)
		}

		if frame.Fin {
			payload := rs.pending
			opcode := rs.opcode
			rs.pending = nil
			rs.active = false

			if opcode == OpText && !utf8.Valid(payload) {
				return nil, formatErr("invalid utf-8 in text message")
			}
			return &Message{Opcode: opcode, Payload: payload}, nil
		}
	}
}
