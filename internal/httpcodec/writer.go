package httpcodec

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Writer is the per-connection HTTP/1.x response writer, restored and
// reused across keep-alive turns (spec.md §4.1 "Writer contract").
type Writer struct {
	w             *bufio.Writer
	bw            io.Writer // unbuffered sink that w flushes into on Flush/Close
	status        int
	statusLine    string
	header        *Header
	committed     bool
	statusWritten bool
}

// NewWriter wraps the connection's output stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), bw: w, header: newHeader(), status: 200}
}

// SetStatus sets the numeric status code for the next commit. Calling it
// after Commit is a programmer error.
func (wr *Writer) SetStatus(code int) {
	wr.mustNotBeCommitted("SetStatus")
	wr.status = code
	wr.statusLine = ""
}

// SetStatusLine sets a verbatim status line such as "200 OK".
func (wr *Writer) SetStatusLine(line string) {
	wr.mustNotBeCommitted("SetStatusLine")
	wr.statusLine = line
}

// SetHeader sets a header, replacing any existing values (case-insensitive).
func (wr *Writer) SetHeader(name, value string) {
	wr.mustNotBeCommitted("SetHeader")
	delete(wr.header.values, canon(name))
	for i, k := range wr.header.keys {
		if canon(k) == canon(name) {
			wr.header.keys = append(wr.header.keys[:i], wr.header.keys[i+1:]...)
			break
		}
	}
	wr.header.Add(name, value)
}

// AddHeader appends an additional value for name without clearing
// existing ones.
func (wr *Writer) AddHeader(name, value string) {
	wr.mustNotBeCommitted("AddHeader")
	wr.header.Add(name, value)
}

// GetHeader returns the first value set for name.
func (wr *Writer) GetHeader(name string) string { return wr.header.Get(name) }

// DeleteHeader removes all values for name.
func (wr *Writer) DeleteHeader(name string) {
	wr.mustNotBeCommitted("DeleteHeader")
	delete(wr.header.values, canon(name))
	kept := wr.header.keys[:0:0]
	for _, k := range wr.header.keys {
		if canon(k) != canon(name) {
			kept = append(kept, k)
		}
	}
	wr.header.keys = kept
}

func (wr *Writer) mustNotBeCommitted(op string) {
	if wr.committed {
		panic(fmt.Sprintf("httpcodec: %s after response committed", op))
	}
}

// Commit writes the status line and headers followed by the terminating
// CRLF. A second call is a no-op other than being idempotent within one
// turn; spec.md treats post-commit header mutation as the programmer
// error, not a second Commit.
func (wr *Writer) Commit() error {
	if wr.committed {
		return nil
	}
	line := wr.statusLine
	if line == "" {
		line = fmt.Sprintf("%d %s", wr.status, http.StatusText(wr.status))
	}
	if _, err := fmt.Fprintf(wr.w, "HTTP/1.1 %s\r\n", line); err != nil {
		return err
	}
	wr.statusWritten = true
	for _, name := range wr.header.Names() {
		for _, v := range wr.header.Values(name) {
			if _, err := fmt.Fprintf(wr.w, "%s: %s\r\n", name, v); err != nil {
				return err
			}
		}
	}
	if _, err := wr.w.WriteString("\r\n"); err != nil {
		return err
	}
	wr.committed = true
	return nil
}

// WriteBody commits (if not already committed) then writes body bytes.
func (wr *Writer) WriteBody(p []byte) (int, error) {
	if err := wr.Commit(); err != nil {
		return 0, err
	}
	return wr.w.Write(p)
}

// WriteLines commits then writes each chunk in order (spec.md §4.1
// "write_lines").
func (wr *Writer) WriteLines(chunks [][]byte) error {
	if err := wr.Commit(); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := wr.w.Write(c); err != nil {
			return err
		}
	}
	return nil
}

// Flush pushes buffered bytes to the underlying connection.
func (wr *Writer) Flush() error { return wr.w.Flush() }

// Close flushes buffered bytes; it does not otherwise change the
// writer's state.
func (wr *Writer) Close() error { return wr.w.Flush() }

// Restore resets status/headers/committed state for the next keep-alive
// turn on the same socket (spec.md §4.1).
func (wr *Writer) Restore() {
	wr.status = 200
	wr.statusLine = ""
	wr.header = newHeader()
	wr.committed = false
	wr.statusWritten = false
}

// StatusWritten reports whether the status line has been written.
func (wr *Writer) StatusWritten() bool { return wr.statusWritten }

// RawWriter returns the unbuffered sink underlying this Writer, for a
// caller that has just committed a protocol upgrade and now needs to
// write directly to the connection (e.g. WebSocket frames), bypassing
// this Writer's header/body buffering entirely.
func (wr *Writer) RawWriter() io.Writer { return wr.bw }

// WriteSimpleError commits a status line with a plain-text body, used for
// BadRequest and similar terminal responses.
func (wr *Writer) WriteSimpleError(code int, body string) error {
	wr.SetStatus(code)
	wr.SetHeader("Content-Type", "text/plain; charset=utf-8")
	wr.SetHeader("Content-Length", strconv.Itoa(len(body)))
	wr.SetHeader("Connection", "close")
	if _, err := wr.WriteBody([]byte(body)); err != nil {
		return err
	}
	return wr.Flush()
}
