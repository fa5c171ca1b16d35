package ws

import (
	"io"
	"sync"

	"github.com/go-vase/vase/internal/endpoint"
)

var _ endpoint.Transport = (*FrameWriter)(nil)

// FrameWriter writes unmasked server->client frames on a single
// connection, synchronized for concurrent Send/Close/pong-from-loop
// use (spec.md §4.4 "Frame build": "Writer is always unmasked").
type FrameWriter struct {
	mu        sync.Mutex
	w         io.Writer
	closeSent bool
}

// NewFrameWriter wraps the connection's raw output stream.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (fw *FrameWriter) write(op OpCode, payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(BuildFrame(true, op, payload))
	return err
}

// Send writes a binary message.
func (fw *FrameWriter) Send(payload []byte) error { return fw.write(OpBinary, payload) }

// SendText writes a text message.
func (fw *FrameWriter) SendText(s string) error { return fw.write(OpText, []byte(s)) }

// Ping writes an unmasked ping frame, used by the idle timer.
func (fw *FrameWriter) Ping(payload []byte) error { return fw.write(OpPing, payload) }

// Pong writes an unmasked pong frame in reply to a received ping.
func (fw *FrameWriter) Pong(payload []byte) error { return fw.write(OpPong, payload) }

// Close sends a close frame exactly once; later calls are no-ops so
// the application and the receive loop can both call it without
// double-sending (spec.md §4.4: "echo a close frame if the application
// hasn't already initiated one").
func (fw *FrameWriter) Close(code int, reason string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closeSent {
		return nil
	}
	fw.closeSent = true
	_, err := fw.w.Write(BuildFrame(true, OpClose, ClosePayload(code, reason)))
	return err
}

// CloseInitiated reports whether a close frame has already been sent.
func (fw *FrameWriter) CloseInitiated() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closeSent
}
