package sockjs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-vase/vase/internal/httpcodec"
)

// encodeArray renders pending outbound messages as SockJS's
// `a[json,json,...]` frame body.
func encodeArray(msgs []string) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		b, _ := json.Marshal(m)
		parts[i] = string(b)
	}
	return "a[" + strings.Join(parts, ",") + "]\n"
}

// writeChunk writes one HTTP chunked-encoding chunk (spec.md §4.5
// describes these transports' framing directly in terms of raw chunk
// bytes, matching original_source/vase/sockjs/handlers.py's
// write_chunk).
func writeChunk(w *httpcodec.Writer, data []byte) (int, error) {
	chunk := fmt.Sprintf("%x\r\n", len(data))
	if _, err := w.WriteBody([]byte(chunk)); err != nil {
		return 0, err
	}
	if _, err := w.WriteBody(data); err != nil {
		return 0, err
	}
	if _, err := w.WriteBody([]byte("\r\n")); err != nil {
		return 0, err
	}
	return len(data), nil
}

func writeFinalChunk(w *httpcodec.Writer) {
	_, _ = w.WriteBody([]byte("0\r\n\r\n"))
	_ = w.Flush()
}

// serveXHR implements the polling `xhr` transport (spec.md §4.5 table).
func serveXHR(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session) {
	ok, goAwayCode := sess.tryAttach()
	if !ok {
		writeGoAway(w, req, goAwayCode)
		return
	}
	defer sess.detach()

	transport := newFakeTransport(sess)
	if sess.markOpenIfNew(ctx, transport) {
		writePolledFrame(w, req, "o\n")
		return
	}

	if sess.State() == StateClosing {
		writePolledFrame(w, req, `c[3000,"Go away!"]`+"\n")
		sess.finishClose()
		return
	}

	msgs := sess.drainOutbound()
	if len(msgs) == 0 {
		select {
		case <-sess.waiter.Chan():
		case <-ctx.Done():
			return
		}
		switch sess.State() {
		case StateTerminated:
			writeGoAway(w, req, 2010)
			return
		case StateClosing:
			writePolledFrame(w, req, `c[3000,"Go away!"]`+"\n")
			sess.finishClose()
			return
		}
		msgs = sess.drainOutbound()
	}
	writePolledFrame(w, req, encodeArray(msgs))
}

// writeGoAway writes the plain-text close frame for a poll that must
// tear down (spec.md §4.5 "attached-flag invariant"): callers pass 1002
// when tryAttach rejected this poll outright (it never attached, or
// raced in against one that was already attached — either way the
// session is now terminated), and 2010 when this poll was the one
// already attached and woke up to find a later poll had terminated the
// session out from under it. This is the same unadorned response
// regardless of which transport asked, matching
// original_source/vase/sockjs/handlers.py's Handler.go_away.
func writeGoAway(w *httpcodec.Writer, req *httpcodec.Request, code int) {
	message := `c[1002,"Connection interrupted"]`
	if code == 2010 {
		message = `c[2010,"Another connection still open"]`
	}
	writePolledFrame(w, req, message+"\n")
}

func writePolledFrame(w *httpcodec.Writer, req *httpcodec.Request, body string) {
	w.SetStatus(200)
	w.SetHeader("Content-Type", "application/javascript; charset=UTF-8")
	w.SetHeader("Content-Length", strconv.Itoa(len(body)))
	w.SetHeader("Cache-Control", noCacheControl)
	setCORSHeaders(w, req)
	_, _ = w.WriteBody([]byte(body))
	_ = w.Flush()
}

// serveXHRSend implements `xhr_send` / the inbound half of `jsonp_send`
// (spec.md §4.5 "Inbound delivery").
func serveXHRSend(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session, formField string) {
	var payload string
	if formField != "" {
		form, err := req.PostForm()
		if err == nil {
			if v, ok := form.Get(formField); ok {
				payload = v
			}
		}
	}
	if payload == "" {
		body, _ := readBody(req)
		payload = string(body)
	}

	if payload == "" {
		send500(w, "Payload expected.")
		return
	}

	var msgs []string
	if err := json.Unmarshal([]byte(payload), &msgs); err != nil {
		send500(w, "Broken JSON encoding.")
		return
	}

	if err := sess.consume(ctx, msgs); err != nil {
		send500(w, err.Error())
		return
	}

	if formField != "" {
		// jsonp_send replies with a tiny "ok" text body.
		body := []byte("ok")
		w.SetStatus(200)
		w.SetHeader("Content-Type", "text/plain; charset=UTF-8")
		w.SetHeader("Access-Control-Allow-Credentials", "true")
		w.SetHeader("Content-Length", "2")
		w.SetHeader("Cache-Control", noCacheControl)
		_, _ = w.WriteBody(body)
		_ = w.Flush()
		return
	}

	w.SetStatus(204)
	w.SetHeader("Content-Type", "text/plain; charset=UTF-8")
	w.SetHeader("Cache-Control", noCacheControl)
	setCORSHeaders(w, req)
	_, _ = w.WriteBody(nil)
	_ = w.Flush()
}

func readBody(req *httpcodec.Request) ([]byte, error) {
	buf := make([]byte, req.Body.Remaining())
	n, err := req.Body.Read(buf)
	if err != nil && n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func send500(w *httpcodec.Writer, reason string) {
	w.SetStatus(500)
	w.SetHeader("Content-Length", strconv.Itoa(len(reason)))
	_, _ = w.WriteBody([]byte(reason))
	_ = w.Flush()
}

const streamingPrelude = "h"

func writeStreamPrelude(w *httpcodec.Writer) {
	body := []byte(strings.Repeat(streamingPrelude, 2048) + "\n")
	_, _ = writeChunk(w, body)
}

// serveXHRStreaming implements spec.md §4.5's `xhr_streaming`: 2 KiB
// `h` prelude, `o` frame, then per-flush `a[...]` frames, closing once
// ≥4096 bytes have been written.
func serveXHRStreaming(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session) {
	ok, goAwayCode := sess.tryAttach()
	if !ok {
		writeGoAway(w, req, goAwayCode)
		return
	}
	defer sess.detach()

	transport := newFakeTransport(sess)
	isNew := sess.markOpenIfNew(ctx, transport)

	w.SetStatus(200)
	w.SetHeader("Content-Type", "application/javascript; charset=UTF-8")
	w.SetHeader("Transfer-Encoding", "chunked")
	w.SetHeader("Cache-Control", noCacheControl)
	setCORSHeaders(w, req)

	writeStreamPrelude(w)
	if isNew {
		writeChunk(w, []byte("o\n"))
	}

	xhrFrame := func(payload string) []byte {
		return []byte(payload + "\n")
	}

	if sess.State() == StateClosing {
		writeChunk(w, xhrFrame(`c[3000,"Go away!"]`))
		writeFinalChunk(w)
		sess.finishClose()
		return
	}

	streamLoop(ctx, w, sess, func(msgs []string) []byte {
		return []byte(encodeArray(msgs))
	}, xhrFrame)
}

// serveEventSource implements spec.md §4.5's `eventsource`: identical
// session semantics to xhr_streaming with text/event-stream framing.
func serveEventSource(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session) {
	ok, goAwayCode := sess.tryAttach()
	if !ok {
		writeGoAway(w, req, goAwayCode)
		return
	}
	defer sess.detach()

	transport := newFakeTransport(sess)
	isNew := sess.markOpenIfNew(ctx, transport)

	w.SetStatus(200)
	w.SetHeader("Content-Type", "text/event-stream; charset=UTF-8")
	w.SetHeader("Transfer-Encoding", "chunked")
	w.SetHeader("Cache-Control", noCacheControl)
	setCORSHeaders(w, req)

	writeChunk(w, []byte("\r\n\r\n"))
	if isNew {
		writeChunk(w, []byte("data: o\r\n\r\n"))
	}

	eventSourceFrame := func(payload string) []byte {
		return []byte("data: " + payload + "\r\n\r\n")
	}

	if sess.State() == StateClosing {
		writeChunk(w, eventSourceFrame(`c[3000,"Go away!"]`))
		writeFinalChunk(w)
		sess.finishClose()
		return
	}

	streamLoop(ctx, w, sess, func(msgs []string) []byte {
		return []byte("data: " + encodeArray(msgs) + "\r\n")
	}, eventSourceFrame)
}

const htmlFileBody = `<!doctype html>
<html><head>
  <meta http-equiv="X-UA-Compatible" content="IE=edge" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head><body><h2>Don't panic!</h2>
  <script>
    document.domain = document.domain;
    var c = parent.%s;
    c.start();
    function p(d) {c.message(d);};
    window.onload = function() {c.stop();};
  </script>`

// serveHTMLFile implements spec.md §4.5's `htmlfile` transport.
func serveHTMLFile(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session) bool {
	callback, ok := req.Query().Get("c")
	if !ok || callback == "" {
		send500(w, `"callback" parameter required`)
		return false
	}

	attached, goAwayCode := sess.tryAttach()
	if !attached {
		writeGoAway(w, req, goAwayCode)
		return true
	}
	defer sess.detach()

	transport := newFakeTransport(sess)
	isNew := sess.markOpenIfNew(ctx, transport)

	w.SetStatus(200)
	w.SetHeader("Content-Type", "text/html; charset=UTF-8")
	w.SetHeader("Transfer-Encoding", "chunked")
	w.SetHeader("Cache-Control", noCacheControl)
	setCORSHeaders(w, req)

	padding := strings.Repeat("\n", 1024)
	writeChunk(w, []byte(fmt.Sprintf(htmlFileBody, callback)+"\n"+padding))
	if isNew {
		writeChunk(w, []byte(`<script>`+"\n"+`p("o");`+"\n"+`</script>`+"\r\n"))
	}

	htmlFileFrame := func(payload string) []byte {
		return []byte(fmt.Sprintf(`<script>%sp(%s);%s</script>`+"\r\n", "\n", jsString(payload), "\n"))
	}

	if sess.State() == StateClosing {
		writeChunk(w, htmlFileFrame(`c[3000,"Go away!"]`))
		writeFinalChunk(w)
		sess.finishClose()
		return true
	}

	streamLoop(ctx, w, sess, func(msgs []string) []byte {
		var sb strings.Builder
		for _, m := range msgs {
			wireFrame := strings.TrimSuffix(encodeArray([]string{m}), "\n")
			sb.WriteString("<script>\np(" + jsString(wireFrame) + ");\n</script>\r\n")
		}
		return []byte(sb.String())
	}, htmlFileFrame)
	return true
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// streamLoop runs the shared "flush then park on the waiter" loop used
// by xhr_streaming, eventsource, and htmlfile, closing once the
// transport has written >=4096 bytes (spec.md §4.5). frame renders a
// control payload (e.g. `c[3000,"Go away!"]`) into this transport's
// wire framing, used for both the CLOSING and TERMINATED go-away
// frames.
func streamLoop(ctx context.Context, w *httpcodec.Writer, sess *Session, encode func([]string) []byte, frame func(payload string) []byte) {
	written := 0
	if msgs := sess.drainOutbound(); len(msgs) > 0 {
		n, _ := writeChunk(w, encode(msgs))
		written += n
		if written >= 4096 {
			writeFinalChunk(w)
			return
		}
	}
	for {
		select {
		case <-sess.waiter.Chan():
		case <-ctx.Done():
			return
		}
		switch sess.State() {
		case StateTerminated:
			// spec.md §4.5 invariant #7: this poll is the one that was
			// already attached when a second initiating poll raced in
			// — it tears itself down with 2010, not the triggering poll.
			writeChunk(w, frame(`c[2010,"Another connection still open"]`))
			writeFinalChunk(w)
			return
		case StateClosing:
			writeChunk(w, frame(`c[3000,"Go away!"]`))
			writeFinalChunk(w)
			sess.finishClose()
			return
		}
		msgs := sess.drainOutbound()
		if len(msgs) == 0 {
			continue
		}
		n, err := writeChunk(w, encode(msgs))
		if err != nil {
			return
		}
		written += n
		if written >= 4096 {
			writeFinalChunk(w)
			return
		}
	}
}

// serveJSONP implements spec.md §4.5's `jsonp` transport: a single
// poll response per callback invocation, no chunking.
func serveJSONP(ctx context.Context, req *httpcodec.Request, w *httpcodec.Writer, sess *Session) bool {
	callback, ok := req.Query().Get("c")
	if !ok || callback == "" {
		send500(w, `"callback" parameter required`)
		return false
	}

	attached, goAwayCode := sess.tryAttach()
	if !attached {
		writeGoAway(w, req, goAwayCode)
		return true
	}
	defer sess.detach()

	transport := newFakeTransport(sess)
	if sess.markOpenIfNew(ctx, transport) {
		writeJSONPBody(w, fmt.Sprintf("%s(\"o\");\r\n", callback))
		return true
	}

	if sess.State() == StateClosing {
		writeJSONPBody(w, fmt.Sprintf("%s(%s);\r\n", callback, jsString(`c[3000,"Go away!"]`)))
		sess.finishClose()
		return true
	}

	msgs := sess.drainOutbound()
	if len(msgs) == 0 {
		select {
		case <-sess.waiter.Chan():
		case <-ctx.Done():
			return true
		}
		switch sess.State() {
		case StateTerminated:
			writeJSONPBody(w, fmt.Sprintf("%s(%s);\r\n", callback, jsString(`c[2010,"Another connection still open"]`)))
			return true
		case StateClosing:
			writeJSONPBody(w, fmt.Sprintf("%s(%s);\r\n", callback, jsString(`c[3000,"Go away!"]`)))
			sess.finishClose()
			return true
		}
		msgs = sess.drainOutbound()
	}
	writeJSONPBody(w, fmt.Sprintf("%s(%s);\r\n", callback, jsString(encodeArray(msgs))))
	return true
}

func writeJSONPBody(w *httpcodec.Writer, body string) {
	w.SetStatus(200)
	w.SetHeader("Content-Type", "application/javascript; charset=UTF-8")
	w.SetHeader("Cache-Control", noCacheControl)
	w.SetHeader("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.WriteBody([]byte(body))
	_ = w.Flush()
}
