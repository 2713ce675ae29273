// Package tunneldriver drives a Tunnel session: it opens a direct-tcpip
// SSH channel to the requested remote host:port (possibly through a jump
// chain) and bridges it to the session's data connection (spec §2 table
// row "Tunnel driver: direct-tcpip forwarding over an SSH channel").
//
// The rate limiter that gates how fast new tunnels may open is grounded on
// the teacher's internal/tunnel/server.go, which uses the same
// golang.org/x/time/rate limiter to gate inbound connection accepts; here
// it gates outbound tunnel opens instead.
package tunneldriver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/websoft9/appos/engine/internal/logging"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	"golang.org/x/time/rate"
)

// DefaultOpenRate caps new tunnel opens per second, mirroring the teacher's
// defaultRateLimit for inbound tunnel connections.
const DefaultOpenRate rate.Limit = 10

// DefaultBurst allows a short burst of simultaneous session opens.
const DefaultBurst = 20

var logger = logging.For("tunneldriver")

// Limiter gates how many tunnels may open per second across the whole
// engine process, shared by every Run call it is passed to.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter builds a Limiter with the given rate and burst.
func NewLimiter(r rate.Limit, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(r, burst)}
}

// Allow reports whether a new tunnel open may proceed now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// ErrRateLimited is returned when a tunnel open is rejected by the limiter.
var ErrRateLimited = fmt.Errorf("tunneldriver: open rate exceeded")

// Run opens the jump-chained SSH transport to target, opens a direct-tcpip
// channel to remoteHost:remotePort over it, and bridges that channel with
// dataConn until either side closes. It blocks until the bridge ends, so
// callers run it on the session's dedicated worker goroutine (spec §3:
// "At most one worker thread per session").
//
// onReady, if non-nil, is called once the direct-tcpip channel is open and
// immediately before the bridge starts — the caller's cue that the session
// is truly Active (spec §4.4 Tunnel mode: "after auth, open direct-tcpip
// ..., mark Active, bridge"; §7: "target connect failure ->
// SessionOpenResult(false)" requires the dial/open to have already
// succeeded by the time success is reported).
func Run(ctx context.Context, limiter *Limiter, jumps []sshtransport.HostAuth, target sshtransport.HostAuth, remoteHost string, remotePort int, dataConn net.Conn, onReady func()) error {
	if limiter != nil && !limiter.Allow() {
		return ErrRateLimited
	}

	chain, err := sshtransport.Dial(ctx, jumps, target)
	if err != nil {
		return fmt.Errorf("tunneldriver: dial: %w", err)
	}
	defer chain.Close()

	tun, err := sshtransport.OpenTunnel(chain, remoteHost, remotePort)
	if err != nil {
		return fmt.Errorf("tunneldriver: open tunnel: %w", err)
	}
	defer tun.Close()

	if onReady != nil {
		onReady()
	}

	logger.Info().Str("remote_host", remoteHost).Int("remote_port", remotePort).Msg("tunnel bridge starting")
	started := time.Now()
	sshtransport.Bridge(dataConn, tun.Channel)
	logger.Info().Dur("duration", time.Since(started)).Msg("tunnel bridge ended")
	return nil
}
