package sockjs

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/go-vase/vase/internal/httpcodec"
)

func writeWelcome(w *httpcodec.Writer) {
	body := []byte("Welcome to SockJS!\n")
	w.SetStatus(200)
	w.SetHeader("Content-Type", "text/plain; charset=UTF-8")
	w.SetHeader("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.WriteBody(body)
	_ = w.Flush()
}

// serveInfo implements spec.md §4.5 "Info endpoint".
func serveInfo(req *httpcodec.Request, w *httpcodec.Writer, allowWebSocket bool) {
	switch req.Method {
	case "GET":
		entropy := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
		body := fmt.Sprintf(
			`{"websocket":%t,"cookie_needed":false,"origins":["*:*"],"entropy":%d}`,
			allowWebSocket, entropy,
		)
		w.SetStatus(200)
		w.SetHeader("Content-Type", "application/json; charset=UTF-8")
		w.SetHeader("Cache-Control", noCacheControl)
		w.SetHeader("Content-Length", strconv.Itoa(len(body)))
		w.SetHeader("Access-Control-Allow-Origin", originOrWildcard(req))
		w.SetHeader("Access-Control-Allow-Credentials", "true")
		_, _ = w.WriteBody([]byte(body))
		_ = w.Flush()
	case "OPTIONS":
		writeCORSPreflight(w, req, "GET")
	default:
		w.SetStatus(405)
		_, _ = w.WriteBody(nil)
		_ = w.Flush()
	}
}

// writeCORSPreflight implements the OPTIONS response shared by the
// info endpoint and every transport's handle_options (spec.md §4.5).
func writeCORSPreflight(w *httpcodec.Writer, req *httpcodec.Request, methods string) {
	w.SetStatus(204)
	w.SetHeader("Content-Type", "application/json; charset=UTF-8")
	w.SetHeader("Cache-Control", "public, max-age=31536000")
	w.SetHeader("Expires", time.Now().Add(365*24*time.Hour).UTC().Format(time.RFC1123))
	w.SetHeader("Content-Length", "0")
	w.SetHeader("Access-Control-Allow-Origin", originOrWildcard(req))
	w.SetHeader("Access-Control-Allow-Credentials", "true")
	w.SetHeader("Access-Control-Allow-Methods", "OPTIONS, "+methods)
	w.SetHeader("Access-Control-Max-Age", "31536000")
	_, _ = w.WriteBody(nil)
	_ = w.Flush()
}

var iframePathRe = regexp.MustCompile(`^/iframe[0-9\-.a-z_]*\.html$`)

const iframeContent = `<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="X-UA-Compatible" content="IE=edge" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  <script>
    document.domain = document.domain;
    _sockjs_onload = function(){SockJS.bootstrap_iframe();};
  </script>
  <script src="//cdn.sockjs.org/sockjs-0.3.min.js"></script>
</head>
<body>
  <h2>Don't panic!</h2>
  <p>This is a SockJS hidden iframe. It's used for cross domain magic.</p>
</body>
</html>`

// serveIFrame implements spec.md §4.5 "Iframe endpoint".
func serveIFrame(req *httpcodec.Request, w *httpcodec.Writer) {
	if req.Method != "GET" {
		w.SetStatus(405)
		w.SetHeader("Allow", "GET")
		_, _ = w.WriteBody(nil)
		_ = w.Flush()
		return
	}

	sum := md5.Sum([]byte(iframeContent))
	etag := `"0` + hex.EncodeToString(sum[:]) + `"`
	if req.Header.Get("If-None-Match") == etag {
		w.SetStatus(304)
		_, _ = w.WriteBody(nil)
		_ = w.Flush()
		return
	}

	w.SetStatus(200)
	w.SetHeader("Content-Type", "text/html; charset=UTF-8")
	w.SetHeader("Cache-Control", "public, max-age=31536000")
	w.SetHeader("ETag", etag)
	w.SetHeader("Expires", time.Now().Add(365*24*time.Hour).UTC().Format(time.RFC1123))
	w.SetHeader("Content-Length", strconv.Itoa(len(iframeContent)))
	_, _ = w.WriteBody([]byte(iframeContent))
	_ = w.Flush()
}
