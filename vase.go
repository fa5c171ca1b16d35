// Package vase is the public facade tying the router, connection
// supervisor, WebSocket handler, and SockJS session layer into the
// single entry point application code uses, grounded on
// original_source/vase/app.py's Vase class (`.route`, `.endpoint`,
// `.run`).
package vase

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/go-vase/vase/internal/config"
	"github.com/go-vase/vase/internal/endpoint"
	"github.com/go-vase/vase/internal/routing"
	"github.com/go-vase/vase/internal/server"
)

// App collects routes before Run starts accepting connections, mirroring
// app.py's Vase: routes are registered ahead of time, then a single
// server loop dispatches to them for the life of the process.
type App struct {
	router *routing.Router
}

// New returns an empty App.
func New() *App {
	return &App{router: routing.New()}
}

// HandleFunc registers an ordinary request/response route (app.py's
// `@app.route(path=...)`). methods follows routing.Router.Handle's
// convention — "*" matches any method.
func (a *App) HandleFunc(pattern string, methods []string, cb server.Callback) {
	a.router.Handle(pattern, methods, server.NewCallbackHandler(cb))
}

// HandleWebSocket registers a route that performs a plain top-level
// WebSocket upgrade (no SockJS session layer). newEndpoint builds a
// fresh endpoint.Base per accepted connection; authorizer may be nil.
func (a *App) HandleWebSocket(pattern string, newEndpoint func() endpoint.Base, authorizer endpoint.Authorizer) {
	a.router.Handle(pattern, []string{"GET"}, server.NewWebSocketRoute(bindBag(newEndpoint), authorizer))
}

// MountSockJS registers a SockJS-emulated endpoint under prefix,
// matching app.py's `@app.endpoint(path=...)` but exposed over the
// full SockJS transport set rather than raw WebSocket alone. prefix
// must not end in "/"; every path beneath it (info, iframe, the
// polling transports, and the native /websocket sub-path) is served by
// the same mounted Handler.
func (a *App) MountSockJS(prefix string, newEndpoint func() endpoint.Base, authorizer endpoint.Authorizer, forbidWebSocket bool) *routing.Route {
	return mountSockJS(a.router, prefix, bindBag(newEndpoint), authorizer, forbidWebSocket)
}

// bindBag wraps newEndpoint so every instance it produces shares one
// Bag for the lifetime of the route, matching app.py's
// initialize_endpoint (`instance.bag = bag`). The Bag is constructed
// once, at registration time, and closed over by the returned factory.
func bindBag(newEndpoint func() endpoint.Base) func() endpoint.Base {
	bag := endpoint.NewBag()
	return func() endpoint.Base {
		inst := newEndpoint()
		if setter, ok := inst.(endpoint.BagSetter); ok {
			setter.SetBag(bag)
		}
		return inst
	}
}

// Run starts accepting connections on cfg.Host:cfg.Port and blocks
// until ctx is cancelled or the listener fails, matching app.py's
// `Vase.run()` but replacing the asyncio event loop with the
// goroutine-per-connection model (spec.md §9).
func (a *App) Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	logger.Info("vase server listening", slog.String("addr", addr))

	limiter := server.NewIPRateLimiter(50, 100)
	accepter := server.NewAccepter(ln, a.router, limiter, cfg.KeepAlive, cfg.MaxHeaderBytes, logger)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	return accepter.Serve(ctx)
}
