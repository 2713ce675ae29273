// Package controlplane implements the persistent framed control-plane
// client: hello/ack handshake, keepalive thread, dispatch table, and the
// data-connection opener every protocol driver rides on (spec §4.8).
//
// Grounded on internal/tunnel/server.go's keepalive-with-deadline
// goroutine and request/reply correlation idiom, and on
// internal/terminal/session.go's registry-backed per-session lifecycle
// dispatch, both generalized from their PocketBase-bound originals to the
// coordinator-facing protocol this spec describes.
package controlplane

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/websoft9/appos/engine/internal/graphical"
	"github.com/websoft9/appos/engine/internal/jobs"
	"github.com/websoft9/appos/engine/internal/logging"
	"github.com/websoft9/appos/engine/internal/registry"
	"github.com/websoft9/appos/engine/internal/wire"
)

// EngineVersion is reported in EngineHello (spec §8 scenario 1).
const EngineVersion = "0.1.0"

const (
	defaultKeepaliveInterval = 10 * time.Second
	defaultReconnectDelay    = 5 * time.Second
)

var logger = logging.For("controlplane")

// Client is the engine's single persistent link to the coordinator (spec
// §3 "Control-plane connection").
type Client struct {
	Host  string
	Port  int
	Token string

	KeepaliveInterval time.Duration
	ReconnectDelay    time.Duration

	Registry *registry.Registry
	Jobs     *jobs.Pool

	// GraphicalPlugins resolves a VNC/RDP protocol plugin for a SessionOpen
	// request. Left nil, VNC/RDP opens fail cleanly with "graphical proxy
	// plugin not configured" (spec §4.5's opening sentence: the actual
	// wire library is out of scope).
	GraphicalPlugins graphical.PluginFactory

	sendMu sync.Mutex
	conn   net.Conn

	connected atomic.Bool
	running   atomic.Bool

	wg sync.WaitGroup
}

// Create returns an inert handle with spec-mandated defaults; call Start
// to open the link.
func Create(host string, port int, token string, reg *registry.Registry, pool *jobs.Pool) *Client {
	return &Client{
		Host:              host,
		Port:              port,
		Token:             token,
		KeepaliveInterval: defaultKeepaliveInterval,
		ReconnectDelay:    defaultReconnectDelay,
		Registry:          reg,
		Jobs:              pool,
	}
}

// Running reports whether the client's threads should keep running.
func (c *Client) Running() bool { return c.running.Load() }

// Connected reports whether the coordinator has accepted our hello.
func (c *Client) Connected() bool { return c.connected.Load() }

// Start opens the control-plane TCP connection, sends EngineHello, and
// spawns the read and keepalive threads (spec §4.8 "start()").
func (c *Client) Start() error {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	conn, err := net.DialTimeout("tcp", addr, 15*time.Second)
	if err != nil {
		return fmt.Errorf("controlplane: dial %s: %w", addr, err)
	}

	c.conn = conn
	c.running.Store(true)

	if err := c.sendLocked(wire.MsgEngineHello, wire.EngineHello{
		Version:           EngineVersion,
		RegistrationToken: c.Token,
	}); err != nil {
		conn.Close()
		c.running.Store(false)
		return fmt.Errorf("controlplane: send hello: %w", err)
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.keepaliveLoop()

	logger.Info().Str("addr", addr).Msg("control-plane connected, hello sent")
	return nil
}

// Stop flips running false, shuts down the socket (unblocking the read
// thread), and joins both threads (spec §4.8 "stop()").
func (c *Client) Stop() {
	c.running.Store(false)
	c.connected.Store(false)
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()
}

// readLoop is the control-plane read thread: loop reading frames,
// dispatch by envelope tag; on read failure while running, mark
// disconnected and not running, then exit, so the owning loop sees the
// link loss and reconnects (spec §4.8 "Read thread").
func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		frame, err := wire.ReadFrame(c.conn, wire.DefaultMaxFrameSize)
		if err != nil {
			if c.running.Load() {
				logger.Warn().Err(err).Msg("controlplane: read failed, link considered lost")
				c.connected.Store(false)
				c.running.Store(false)
			}
			return
		}
		env, err := wire.Decode(frame)
		if err != nil {
			logger.Warn().Err(err).Msg("controlplane: malformed envelope, dropped")
			continue
		}
		c.dispatch(env)
	}
}

// keepaliveLoop sleeps KeepaliveInterval and sends Ping while connected
// (spec §4.8 "Keepalive thread").
func (c *Client) keepaliveLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.KeepaliveInterval)
	defer ticker.Stop()
	for c.running.Load() {
		<-ticker.C
		if !c.running.Load() {
			return
		}
		if c.connected.Load() {
			_ = c.sendLocked(wire.MsgPing, wire.Ping{Timestamp: nowMillis()})
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// OpenDataConnection opens a fresh TCP connection to the same coordinator
// host:port and sends an unmutexed ConnectionReady{session_id} as the
// first frame (spec §4.8 "Data connection"). This socket is private to the
// caller, so it bypasses the control socket's send mutex entirely.
func (c *Client) OpenDataConnection(ctx context.Context, sessionID string) (net.Conn, error) {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("controlplane: open data connection: %w", err)
	}
	b, err := wire.Encode(wire.MsgConnectionReady, wire.ConnectionReady{SessionID: sessionID})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := wire.WriteFrame(conn, b); err != nil {
		conn.Close()
		return nil, fmt.Errorf("controlplane: send ConnectionReady: %w", err)
	}
	return conn, nil
}
