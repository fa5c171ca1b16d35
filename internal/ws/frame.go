// Package ws implements the RFC 6455 WebSocket frame codec, message
// reassembly, handshake, and receive loop described in spec.md §4.4.
// It is grounded on original_source/vase/websocket.py's WebSocketParser
// and WebSocketWriter, and on pepnova-9-go-websocket-server's Go framing
// idiom (parseFrames/buildFrame).
package ws

import (
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-vase/vase/internal/netstream"
)

// OpCode identifies a frame's type per RFC 6455 §5.2.
type OpCode byte

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xA
)

// IsControl reports whether the opcode identifies a control frame
// (high bit of the 4-bit opcode set).
func (o OpCode) IsControl() bool { return o&0x8 != 0 }

func validOpcode(o OpCode) bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

// FormatError reports a frame that violates the protocol; spec.md §4.4
// requires the receive loop close the transport without a close frame
// when one occurs.
type FormatError struct{ Reason string }

func (e *FormatError) Error() string { return "websocket format error: " + e.Reason }

func formatErr(reason string) error { return &FormatError{Reason: reason} }

// Frame is one parsed WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  OpCode
	Payload []byte
}

// ParseFrame reads exactly one frame from r. A nil Frame with a nil
// error means the stream ended before any header byte arrived, or
// ended partway through the extended length, mask or payload (spec.md
// §4.4: "any short read returning 0 bytes where more were expected
// returns nothing"). A stream that ends after only one header byte
// returns io.ErrUnexpectedEOF.
func ParseFrame(ctx context.Context, r *netstream.Reader) (*Frame, error) {
	head, err := r.ReadExact(ctx, 2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	firstByte, secondByte := head[0], head[1]
	fin := firstByte&0x80 != 0
	rsv := firstByte & 0x70
	opcode := OpCode(firstByte & 0x0f)

	if rsv != 0 {
		return nil, formatErr("reserved bits must be zero")
	}
	if !validOpcode(opcode) {
		return nil, formatErr("unknown opcode")
	}
	if opcode.IsControl() && (!fin || secondByte&0x7f > 125) {
		return nil, formatErr("control frame fragmented or oversized")
	}

	masked := secondByte&0x80 != 0
	if !masked {
		return nil, formatErr("client frame must be masked")
	}

	length := int(secondByte & 0x7f)
	switch length {
	case 126:
		ext, err := r.ReadExact(ctx, 2)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, nil
			}
			return nil, err
		}
		length = int(binary.BigEndian.Uint16(ext))
	case 127:
		ext, err := r.ReadExact(ctx, 8)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, nil
			}
			return nil, err
		}
		length = int(binary.BigEndian.Uint64(ext))
	}

	mask, err := r.ReadExact(ctx, 4)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}

	var payload []byte
	if length > 0 {
		payload, err = r.ReadExact(ctx, length)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, nil
			}
			return nil, err
		}
	}

	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	return &Frame{Fin: fin, Opcode: opcode, Payload: payload}, nil
}

// BuildFrame assembles a server->client frame (always unmasked) per
// spec.md §4.4 "Frame build".
func BuildFrame(fin bool, opcode OpCode, payload []byte) []byte {
	first := byte(opcode & 0x0f)
	if fin {
		first |= 0x80
	}

	length := len(payload)
	var header []byte
	switch {
	case length <= 125:
		header = []byte{first, byte(length)}
	case length <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = first
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(length))
	default:
		header = make([]byte, 10)
		header[0] = first
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(length))
	}

	out := make([]byte, 0, len(header)+length)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// ClosePayload builds a close frame body: empty, or a 16-bit big-endian
// status code optionally followed by the reason text. A reason without
// an explicit code defaults to 1000 (spec.md §4.4).
func ClosePayload(code int, reason string) []byte {
	if code == 0 && reason == "" {
		return nil
	}
	if code == 0 {
		code = 1000
	}
	out := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(out, uint16(code))
	copy(out[2:], reason)
	return out
}
