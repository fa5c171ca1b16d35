package sockjs

import "github.com/go-vase/vase/internal/httpcodec"

// originOrWildcard maps a missing or "null" Origin header to "*"
// (spec.md §4.5 "CORS echoes the request's Origin (mapping null or
// missing to *)").
func originOrWildcard(req *httpcodec.Request) string {
	origin := req.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return "*"
	}
	return origin
}

// setCORSHeaders applies the standard SockJS CORS echo to the xhr,
// xhr_send, xhr_streaming, eventsource and htmlfile responses. The
// jsonp and jsonp_send bodies and the 500 replies do not carry it.
func setCORSHeaders(w *httpcodec.Writer, req *httpcodec.Request) {
	w.SetHeader("Access-Control-Allow-Origin", originOrWildcard(req))
	w.SetHeader("Access-Control-Allow-Credentials", "true")
	if allow := req.Header.Get("Access-Control-Request-Headers"); allow != "" {
		w.SetHeader("Access-Control-Allow-Headers", allow)
	}
}

const noCacheControl = "no-store, no-cache, must-revalidate, max-age=0"
