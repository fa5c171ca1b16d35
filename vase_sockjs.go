package vase

import (
	"strings"

	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/routing"
	"github.com/go-vase/vase/internal/sockjs"
)

// mountSockJS registers prefix (and everything beneath it) against a
// single *sockjs.Handler, captured by the router's "tail" parameter
// that the connection supervisor passes straight through to
// sockjs.Handler.Serve.
func mountSockJS(router *routing.Router, prefix string, newEndpoint func() endpoint.Base, authorizer endpoint.Authorizer, forbidWebSocket bool) *routing.Route {
	prefix = strings.TrimSuffix(prefix, "/")
	handler := sockjs.NewHandler(sockjs.EndpointFactory(newEndpoint), authorizer, forbidWebSocket)
	pattern := prefix + `{tail:(?:/.*)?}`
	return router.Handle(pattern, []string{"*"}, handler)
}
