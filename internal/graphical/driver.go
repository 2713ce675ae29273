package graphical

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/websoft9/appos/engine/internal/logging"
)

// SelectHandshakeTimeout is the read deadline set on a user's connection
// just before HandleConnection runs (spec §4.5 "User thread": "expect a
// 'select' opcode within 15 s"). The driver does not clear the deadline
// afterwards.
const SelectHandshakeTimeout = 15 * time.Second

var logger = logging.For("graphical")

// Kind names the remote-desktop protocol the session speaks; the plugin
// registry resolves one of these to a concrete Plugin (spec §4.5 step 3:
// "load the protocol plugin matching the kind").
type Kind string

const (
	KindVNC    Kind = "vnc"
	KindRDP    Kind = "rdp"
	KindSSH    Kind = "ssh"
	KindTelnet Kind = "telnet"
)

// Plugin is the out-of-scope graphical-proxy library's protocol plugin
// interface: given connection parameters it produces a User bound to a
// Client. The engine only ever calls through this interface; the actual
// VNC/RDP wire implementation is not this package's concern (spec §4.5's
// opening sentence).
type Plugin interface {
	NewUser(client Client, owner bool) (User, error)
}

// PluginFactory resolves a concrete Plugin for a session kind. The engine
// ships no factory by default since the graphical wire library itself is
// out of scope (spec §4.5's opening sentence); a deployment that embeds
// one wires it in via controlplane.Client.GraphicalPlugins.
type PluginFactory func(kind Kind) (Plugin, error)

// Client is the graphical-proxy library's per-session handle: it owns the
// connection id reported back to the coordinator and the log tagging
// described in spec §4.5 step 3.
type Client interface {
	ConnectionID() string
	EnableKeepAlive() error
	Stop()
}

// User is one connected participant (owner or joiner) driven by a user
// thread (spec §4.5 "User thread").
type User interface {
	// HandleConnection blocks, serving conn until the user disconnects or
	// ctx-equivalent cancellation happens via conn's own close.
	HandleConnection(conn net.Conn) error
	Free()
}

// Session drives one graphical (VNC/RDP) session end to end: allocate the
// rendezvous, register the owner, run the accept-joins loop, and tear
// everything down on exit (spec §4.5).
type Session struct {
	Plugin Plugin
	Client Client

	rendezvous *Rendezvous
	users      sync.WaitGroup
	userCount  atomic.Int32

	closeOnce sync.Once
}

// Start performs steps 1-5 of spec §4.5: allocate the rendezvous, enable
// keepalive, and spawn the owner user thread against ownerConn. It returns
// once the owner thread has been spawned; the caller is expected to then
// call Run on a dedicated goroutine to drive the accept-joins loop.
func Start(plugin Plugin, client Client, ownerConn net.Conn) (*Session, error) {
	rv, err := NewRendezvous()
	if err != nil {
		return nil, err
	}

	if err := client.EnableKeepAlive(); err != nil {
		rv.Close()
		return nil, fmt.Errorf("graphical: enable keepalive: %w", err)
	}

	s := &Session{Plugin: plugin, Client: client, rendezvous: rv}
	s.spawnUser(ownerConn, true)
	return s, nil
}

// Rendezvous exposes the session's join rendezvous so the dispatcher can
// deliver SessionJoin fds to it (spec §4.5 "Join request").
func (s *Session) Rendezvous() *Rendezvous { return s.rendezvous }

// spawnUser runs the "User thread" procedure of spec §4.5 on a fresh
// goroutine: allocate a user bound to the client, run it until the
// connection ends, then free it.
func (s *Session) spawnUser(conn net.Conn, owner bool) {
	s.userCount.Add(1)
	s.users.Add(1)
	go func() {
		defer s.users.Done()
		defer s.userCount.Add(-1)
		defer conn.Close()

		user, err := s.Plugin.NewUser(s.Client, owner)
		if err != nil {
			logger.Warn().Err(err).Bool("owner", owner).Msg("graphical: user allocation failed")
			return
		}
		defer user.Free()

		if err := conn.SetReadDeadline(time.Now().Add(SelectHandshakeTimeout)); err != nil {
			return
		}
		if err := user.HandleConnection(conn); err != nil {
			logger.Debug().Err(err).Bool("owner", owner).Msg("graphical: user session ended")
		}
	}()
}

// Run executes the accept-joins loop (spec §4.5 step 6): poll the
// rendezvous, spawn a joiner thread per received fd, and stop once a poll
// times out with no users connected or the rendezvous errors out.
func (s *Session) Run() {
	for {
		f, err := ReceiveJoinFD(s.rendezvous)
		if err != nil {
			if err == ErrPollTimeout {
				if s.userCount.Load() == 0 {
					break
				}
				continue
			}
			logger.Warn().Err(err).Msg("graphical: rendezvous poll error")
			break
		}
		conn, connErr := net.FileConn(f)
		_ = f.Close()
		if connErr != nil {
			logger.Warn().Err(connErr).Msg("graphical: join fd to conn")
			continue
		}
		s.spawnUser(conn, false)
	}
	s.Stop()
}

// Stop runs spec §4.5 step 7: stop and free the client, close the
// rendezvous, and wait for in-flight user threads to exit.
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.Client.Stop()
		s.rendezvous.Close()
	})
	s.users.Wait()
}
