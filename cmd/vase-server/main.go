package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	vase "github.com/go-vase/vase"
	"github.com/go-vase/vase/internal/auth"
	"github.com/go-vase/vase/internal/config"
	"github.com/go-vase/vase/internal/endpoint"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var authorizer endpoint.Authorizer
	if cfg.JWTSecret != "" {
		authorizer = auth.NewJWTAuthorizer(cfg.JWTSecret, "vase-server")
	}

	app := vase.New()
	app.HandleWebSocket("/ws/echo", newEchoEndpoint, authorizer)
	app.MountSockJS("/chat", newChatEndpoint, authorizer, false)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// echoEndpoint writes back every message it receives, demonstrating the
// plain top-level WebSocket route.
type echoEndpoint struct {
	peerID string
	t      endpoint.Transport
}

func newEchoEndpoint() endpoint.Base {
	return &echoEndpoint{peerID: uuid.NewString()}
}

func (e *echoEndpoint) OnConnect(ctx context.Context, t endpoint.Transport) {
	e.t = t
	slog.Info("echo client connected", slog.String("peer", e.peerID))
}

func (e *echoEndpoint) OnMessage(ctx context.Context, payload []byte) error {
	return e.t.Send(payload)
}

func (e *echoEndpoint) OnClose(ctx context.Context, err error) {
	slog.Info("echo client disconnected", slog.String("peer", e.peerID), slog.Any("error", err))
}

// chatEndpoint fans every message out to every other connected peer,
// demonstrating a SockJS-backed multi-party endpoint that shares state
// across instances via its route's Bag rather than a package-level
// variable — every chatEndpoint instance vase.App constructs for the
// /chat route receives the same Bag, so the peer roster lives there
// instead of in process-wide state the route can't see past.
type chatEndpoint struct {
	peerID string
	t      endpoint.Transport
	bag    *endpoint.Bag
}

const chatRoomKey = "peers"

func newChatEndpoint() endpoint.Base {
	return &chatEndpoint{peerID: uuid.NewString()}
}

func (c *chatEndpoint) SetBag(bag *endpoint.Bag) {
	c.bag = bag
}

func (c *chatEndpoint) peers() *chatRoom {
	room := c.bag.GetOrCreate(chatRoomKey, func() interface{} {
		return &chatRoom{peers: make(map[string]endpoint.Transport)}
	})
	return room.(*chatRoom)
}

func (c *chatEndpoint) OnConnect(ctx context.Context, t endpoint.Transport) {
	c.t = t
	room := c.peers()
	room.mu.Lock()
	room.peers[c.peerID] = t
	room.mu.Unlock()
}

func (c *chatEndpoint) OnMessage(ctx context.Context, payload []byte) error {
	room := c.peers()
	room.mu.Lock()
	defer room.mu.Unlock()
	for peerID, t := range room.peers {
		if peerID == c.peerID {
			continue
		}
		if err := t.Send(payload); err != nil {
			slog.Warn("failed to deliver chat message", slog.String("peer", peerID), slog.Any("error", err))
		}
	}
	return nil
}

func (c *chatEndpoint) OnClose(ctx context.Context, err error) {
	room := c.peers()
	room.mu.Lock()
	delete(room.peers, c.peerID)
	room.mu.Unlock()
}

// chatRoom is the shared state stored in the /chat route's Bag.
type chatRoom struct {
	mu    sync.Mutex
	peers map[string]endpoint.Transport
}
