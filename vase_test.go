package vase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vase/vase/internal/endpoint"
)

type bagAwareEndpoint struct {
	bag *endpoint.Bag
}

func (e *bagAwareEndpoint) SetBag(b *endpoint.Bag)                               { e.bag = b }
func (e *bagAwareEndpoint) OnConnect(ctx context.Context, t endpoint.Transport)   {}
func (e *bagAwareEndpoint) OnMessage(ctx context.Context, payload []byte) error   { return nil }
func (e *bagAwareEndpoint) OnClose(ctx context.Context, err error)                {}

type bagUnawareEndpoint struct{}

func (e *bagUnawareEndpoint) OnConnect(ctx context.Context, t endpoint.Transport) {}
func (e *bagUnawareEndpoint) OnMessage(ctx context.Context, payload []byte) error { return nil }
func (e *bagUnawareEndpoint) OnClose(ctx context.Context, err error)              {}

func TestBindBag_SharesOneBagAcrossInstances(t *testing.T) {
	factory := bindBag(func() endpoint.Base {
		return &bagAwareEndpoint{}
	})

	first := factory().(*bagAwareEndpoint)
	second := factory().(*bagAwareEndpoint)

	require.NotNil(t, first.bag)
	require.NotNil(t, second.bag)
	assert.Same(t, first.bag, second.bag)
}

func TestBindBag_ToleratesEndpointWithoutSetBag(t *testing.T) {
	factory := bindBag(func() endpoint.Base {
		return &bagUnawareEndpoint{}
	})

	assert.NotPanics(t, func() {
		inst := factory()
		require.IsType(t, &bagUnawareEndpoint{}, inst)
	})
}
