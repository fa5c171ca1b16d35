// Package endpoint defines the capability interfaces application code
// implements to receive WebSocket/SockJS connections, replacing the
// Python source's duck-typed hasattr probing (original_source/vase
// dispatches on attribute presence) with explicit, narrow Go
// interfaces (SPEC_FULL.md §3 expansion).
package endpoint

import (
	"context"
	"sync"
)

// Base is the mandatory endpoint contract: lifecycle callbacks invoked
// by the WebSocket or SockJS handler in FIFO order — OnConnect before
// any OnMessage, OnClose after the last OnMessage the endpoint will
// observe (spec.md §5 "Ordering guarantees").
type Base interface {
	OnConnect(ctx context.Context, t Transport)
	OnMessage(ctx context.Context, payload []byte) error
	OnClose(ctx context.Context, err error)
}

// Authorizer is an optional capability; an endpoint implementing it is
// consulted before the handshake/session is established. A false
// return produces a 401 and aborts the upgrade/session (spec.md §4.4
// "Handshake", §9 Open Question on authorize_request and uninitialized
// sessions — resolved here by invoking it before any Session exists).
type Authorizer interface {
	AuthorizeRequest(ctx context.Context, peer string, header map[string][]string) bool
}

// Transport is the outbound half of a connection: a native WebSocket
// frame writer or a SockJS FakeTransport, both implementing the same
// narrow send/close surface (SPEC_FULL.md §3).
type Transport interface {
	Send(payload []byte) error
	SendText(s string) error
	Close(code int, reason string) error
}

// Bag is a small sync.Map-backed store for values shared by every
// instance of a route's endpoint, without a custom struct field for
// every use case (SPEC_FULL.md §3). One Bag is created per
// registered route and handed to every instance of that route's
// endpoint, mirroring original_source/vase/app.py's initialize_endpoint
// (`instance.bag = bag`), where all instances of an endpoint class
// registered at the same route share one dict.
type Bag struct {
	m sync.Map
}

// NewBag returns an empty Bag.
func NewBag() *Bag { return &Bag{} }

// Get returns the value stored under key, or nil if absent.
func (b *Bag) Get(key string) (interface{}, bool) { return b.m.Load(key) }

// Set stores value under key.
func (b *Bag) Set(key string, value interface{}) { b.m.Store(key, value) }

// Delete removes key.
func (b *Bag) Delete(key string) { b.m.Delete(key) }

// GetOrCreate returns the value under key, creating it with new if
// absent. Safe for concurrent first-touch from multiple endpoint
// instances racing to initialize shared route state.
func (b *Bag) GetOrCreate(key string, new func() interface{}) interface{} {
	if v, ok := b.m.Load(key); ok {
		return v
	}
	v, _ := b.m.LoadOrStore(key, new())
	return v
}

// BagSetter is the optional capability an endpoint implements to
// receive its route's shared Bag. It is invoked once, immediately
// after construction and before OnConnect.
type BagSetter interface {
	SetBag(*Bag)
}
