package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrTransport      = errors.New("controlplane: transport failure")
	ErrParse          = errors.New("controlplane: unparseable response")
	ErrInvalidConfig  = errors.New("controlplane: invalid client config")
	ErrInvalidProfile = errors.New("controlplane: invalid agent profile")
)

// TransportError reports a request that never produced an HTTP status
// (DNS, TLS, connection reset, timeout).
type TransportError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("controlplane: %s transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Timeout reports whether the failure was the per-request deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
