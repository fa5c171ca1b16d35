package httpcodec

import "fmt"

// BadRequestError signals a malformed request that cannot be parsed as
// HTTP/1.x (spec.md §4.1 parse invariants). The connection supervisor
// writes a 400 response and closes the connection when it sees one.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}

func badRequest(reason string) error {
	return &BadRequestError{Reason: reason}
}
