package sockjs

import (
	"github.com/go-vase/vase/internal/endpoint"
)

// FakeTransport is the endpoint.Transport an application sees for a
// SockJS session: sends queue onto the session's outbound buffer
// instead of writing frames directly, since the real write happens on
// whichever poll is currently attached (spec.md §4.5 "Outbound
// wake-up").
type FakeTransport struct {
	session *Session
}

var _ endpoint.Transport = (*FakeTransport)(nil)

func newFakeTransport(s *Session) *FakeTransport { return &FakeTransport{session: s} }

// Send queues a binary payload as a SockJS text frame.
func (t *FakeTransport) Send(payload []byte) error {
	t.session.pushOutbound(string(payload))
	return nil
}

// SendText queues a text payload.
func (t *FakeTransport) SendText(s string) error {
	t.session.pushOutbound(s)
	return nil
}

// Close transitions the session to CLOSING; the next poll delivers the
// go-away frame and the session becomes CLOSED (spec.md §4.5).
func (t *FakeTransport) Close(code int, reason string) error {
	t.session.closeFromApp()
	return nil
}
