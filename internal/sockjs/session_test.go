package sockjs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vase/vase/internal/endpoint"
)

type recordingEndpoint struct {
	mu        sync.Mutex
	connected bool
	messages  [][]byte
	closed    bool
	closeErr  error
}

func (e *recordingEndpoint) OnConnect(ctx context.Context, t endpoint.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = true
}

func (e *recordingEndpoint) OnMessage(ctx context.Context, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, append([]byte(nil), payload...))
	return nil
}

func (e *recordingEndpoint) OnClose(ctx context.Context, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.closeErr = err
}

func TestSession_MarkOpenIfNewCallsOnConnectExactlyOnce(t *testing.T) {
	ep := &recordingEndpoint{}
	sess := newSession("s1", ep)
	tr := newFakeTransport(sess)

	assert.True(t, sess.markOpenIfNew(context.Background(), tr))
	assert.True(t, ep.connected)
	assert.Equal(t, StateOpen, sess.State())

	assert.False(t, sess.markOpenIfNew(context.Background(), tr))
}

func TestSession_TryAttachEnforcesAtMostOneAttachedPoll(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})

	ok, code := sess.tryAttach()
	require.True(t, ok)
	assert.Equal(t, 0, code)

	// The second, triggering poll gets 1002 — it is not the one torn
	// down. The already-attached poll is the one that must observe
	// StateTerminated and deliver 2010 itself (spec.md §4.5 invariant #7).
	ok, code = sess.tryAttach()
	assert.False(t, ok)
	assert.Equal(t, 1002, code)
	assert.Equal(t, StateTerminated, sess.State())
}

func TestSession_TryAttachSignalsAttachedPollOnTermination(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})

	ok, _ := sess.tryAttach()
	require.True(t, ok)
	waiter := sess.waiter.Chan()

	ok, code := sess.tryAttach()
	assert.False(t, ok)
	assert.Equal(t, 1002, code)

	select {
	case <-waiter:
	default:
		t.Fatal("attached poll's waiter was not signaled on termination")
	}
}

func TestSession_TryAttachAfterTerminatedReturns1002(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})
	sess.tryAttach()
	sess.tryAttach() // second attempt terminates the session

	ok, code := sess.tryAttach()
	assert.False(t, ok)
	assert.Equal(t, 1002, code)
}

func TestSession_DetachAllowsReattach(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})
	ok, _ := sess.tryAttach()
	require.True(t, ok)

	sess.detach()

	ok, _ = sess.tryAttach()
	assert.True(t, ok)
}

func TestSession_PushAndDrainOutboundSignalsWaiter(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})
	waitCh := sess.waiter.Chan()

	sess.pushOutbound("hello")

	select {
	case <-waitCh:
	default:
		t.Fatal("expected waiter to be signaled after pushOutbound")
	}

	msgs := sess.drainOutbound()
	assert.Equal(t, []string{"hello"}, msgs)
	assert.Empty(t, sess.drainOutbound())
}

func TestSession_CloseFromAppTransitionsToClosing(t *testing.T) {
	sess := newSession("s1", &recordingEndpoint{})
	sess.markOpenIfNew(context.Background(), newFakeTransport(sess))

	sess.closeFromApp()
	assert.Equal(t, StateClosing, sess.State())

	sess.finishClose()
	assert.Equal(t, StateClosed, sess.State())
}

func TestSession_ConsumeDeliversMessagesInOrder(t *testing.T) {
	ep := &recordingEndpoint{}
	sess := newSession("s1", ep)

	err := sess.consume(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, ep.messages)
}

func TestStore_GetOrCreateReturnsExistingSession(t *testing.T) {
	store := NewStore()
	ep := &recordingEndpoint{}

	s1, created1 := store.GetOrCreate("abc", ep)
	assert.True(t, created1)

	s2, created2 := store.GetOrCreate("abc", &recordingEndpoint{})
	assert.False(t, created2)
	assert.Same(t, s1, s2)
}

func TestStore_GetReportsMissingSession(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("nope")
	assert.False(t, ok)
}
