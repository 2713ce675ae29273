// Package netutil implements the connect primitive (spec §4.2): resolve,
// dial every candidate address in order, apply keepalive/nodelay, fail with
// a wrapped error when nothing answers.
package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrUnreachable is wrapped into the error returned when every resolved
// address failed to connect.
var ErrUnreachable = fmt.Errorf("netutil: unreachable")

// KeepAlivePeriod is applied to every TCP connection this package opens.
const KeepAlivePeriod = 30 * time.Second

// Dial resolves host (v4 and v6 both allowed, tried in the order the
// resolver returns them) and connects to port, honoring ctx cancellation.
// On success it applies SO_KEEPALIVE and TCP_NODELAY.
func Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		// net.Dialer already tries every resolved address for us (both
		// families, in resolver order) before giving up, so a single
		// DialContext failure here means all candidates were exhausted.
		return nil, fmt.Errorf("netutil: dial %s: %w: %v", addr, ErrUnreachable, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(KeepAlivePeriod)
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}
