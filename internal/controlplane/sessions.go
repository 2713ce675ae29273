package controlplane

import (
	"fmt"
	"net"
	"strconv"

	"github.com/websoft9/appos/engine/internal/graphical"
	"github.com/websoft9/appos/engine/internal/registry"
	"github.com/websoft9/appos/engine/internal/sftpdriver"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	"github.com/websoft9/appos/engine/internal/telnetdriver"
	"github.com/websoft9/appos/engine/internal/tunneldriver"
	"github.com/websoft9/appos/engine/internal/wire"
)

var tunnelLimiter = tunneldriver.NewLimiter(tunneldriver.DefaultOpenRate, tunneldriver.DefaultBurst)

func kindFromSessionType(t string) (registry.Kind, bool) {
	switch t {
	case "vnc":
		return registry.KindVNC, true
	case "rdp":
		return registry.KindRDP, true
	case "ssh":
		return registry.KindSSH, true
	case "sftp":
		return registry.KindSFTP, true
	case "telnet":
		return registry.KindTelnet, true
	case "tunnel":
		return registry.KindTunnel, true
	default:
		return "", false
	}
}

// handleSessionOpen implements spec §4.8's SessionOpen row: create the
// session, copy params, synthesize jump-host params, then dispatch to the
// driver matching session_type on a detached goroutine.
func (c *Client) handleSessionOpen(req wire.SessionOpen) {
	kind, ok := kindFromSessionType(req.SessionType)
	if !ok {
		_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: req.SessionID, Success: false, ErrorMessage: "unknown session type"})
		return
	}

	sess, err := c.Registry.Create(req.SessionID, kind, req.Host, req.Port)
	if err != nil {
		_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: req.SessionID, Success: false, ErrorMessage: err.Error()})
		return
	}

	for _, p := range req.Params {
		_ = sess.AddParam(p.Key, p.Value)
	}
	storeJumpHostParams(sess, req.JumpHosts)

	sess.SetState(registry.StateConnecting)

	go c.runDriver(sess, req)
}

// storeJumpHostParams flattens req.JumpHosts into the synthetic
// jumpHostCount / jumpHost{i}_{field} params spec §4.8 calls for, so every
// driver consumes jump hosts the same way regardless of transport.
func storeJumpHostParams(sess *registry.Session, jumps []wire.JumpHost) {
	_ = sess.AddParam("jumpHostCount", strconv.Itoa(len(jumps)))
	for i, jh := range jumps {
		prefix := "jumpHost" + strconv.Itoa(i) + "_"
		_ = sess.AddParam(prefix+"host", jh.Host)
		_ = sess.AddParam(prefix+"port", strconv.Itoa(jh.Port))
		_ = sess.AddParam(prefix+"username", jh.Username)
		_ = sess.AddParam(prefix+"password", jh.Password)
		_ = sess.AddParam(prefix+"privateKey", jh.PrivateKey)
		_ = sess.AddParam(prefix+"passphrase", jh.Passphrase)
	}
}

// jumpHostsFromParams reverses storeJumpHostParams, rebuilding the
// []sshtransport.HostAuth chain a driver dials through.
func jumpHostsFromParams(sess *registry.Session) []sshtransport.HostAuth {
	count, _ := strconv.Atoi(sess.ParamOr("jumpHostCount", "0"))
	hops := make([]sshtransport.HostAuth, 0, count)
	for i := 0; i < count; i++ {
		prefix := "jumpHost" + strconv.Itoa(i) + "_"
		port, _ := strconv.Atoi(sess.ParamOr(prefix+"port", "22"))
		hops = append(hops, sshtransport.HostAuth{
			Host:       sess.ParamOr(prefix+"host", ""),
			Port:       port,
			User:       sess.ParamOr(prefix+"username", ""),
			Password:   sess.ParamOr(prefix+"password", ""),
			PrivateKey: sess.ParamOr(prefix+"privateKey", ""),
			Passphrase: sess.ParamOr(prefix+"passphrase", ""),
		})
	}
	return hops
}

// runDriver is the session's sole worker goroutine (spec §3 invariant: "At
// most one worker thread per session"). It opens the data connection,
// opens the remote connection via the matching driver, bridges until
// either side closes, then emits SessionClosed.
func (c *Client) runDriver(sess *registry.Session, req wire.SessionOpen) {
	switch sess.Kind {
	case registry.KindSSH:
		c.runSSHShell(sess)
	case registry.KindSFTP:
		c.runSFTP(sess)
	case registry.KindTelnet:
		c.runTelnet(sess)
	case registry.KindTunnel:
		c.runTunnel(sess)
	case registry.KindVNC, registry.KindRDP:
		c.runGraphical(sess)
	default:
		_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: false, ErrorMessage: "unsupported session kind"})
		c.Registry.Remove(sess.ID)
	}
}

func (c *Client) runSSHShell(sess *registry.Session) {
	jumps := jumpHostsFromParams(sess)
	target := sshtransport.HostAuthFromParams(sess.Host, sess.Port, sess)

	chain, err := sshtransport.Dial(sess.Ctx, jumps, target)
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("Failed to connect: %v", err))
		return
	}

	shell, err := sshtransport.OpenShell(chain)
	if err != nil {
		chain.Close()
		c.failOpen(sess, fmt.Sprintf("SSH shell negotiation failed: %v", err))
		return
	}
	sess.SetCloser(func() error { return shell.Close() })
	setSSHShell(sess.ID, shell)
	defer clearSSHShell(sess.ID)

	dataConn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		shell.Close()
		c.failOpen(sess, fmt.Sprintf("Failed to open data connection: %v", err))
		return
	}
	defer dataConn.Close()

	sess.SetState(registry.StateActive)
	_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: true})

	rw := struct {
		ioReader
		ioWriter
	}{shell.Stdout, shell.Stdin}
	sshtransport.Bridge(dataConn, rw)

	c.finishSession(sess, "closed by server")
}

func (c *Client) runSFTP(sess *registry.Session) {
	jumps := jumpHostsFromParams(sess)
	target := sshtransport.HostAuthFromParams(sess.Host, sess.Port, sess)

	chain, err := sshtransport.Dial(sess.Ctx, jumps, target)
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("Failed to connect: %v", err))
		return
	}

	sftpClient, err := sftpdriver.Open(chain)
	if err != nil {
		chain.Close()
		c.failOpen(sess, fmt.Sprintf("SFTP init failed: %v", err))
		return
	}
	sess.SetCloser(func() error { return sftpClient.Close() })

	dataConn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		sftpClient.Close()
		c.failOpen(sess, fmt.Sprintf("Failed to open data connection: %v", err))
		return
	}
	defer dataConn.Close()

	sess.SetState(registry.StateActive)
	_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: true})

	_ = sftpdriver.Serve(dataConn, sftpClient)

	c.finishSession(sess, "closed by server")
}

func (c *Client) runTelnet(sess *registry.Session) {
	driver, err := telnetdriver.Dial(sess.Host, sess.Port)
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("Failed to connect: %v", err))
		return
	}
	sess.SetCloser(func() error { return driver.Close() })
	setTelnetDriver(sess.ID, driver)
	defer clearTelnetDriver(sess.ID)

	dataConn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		driver.Close()
		c.failOpen(sess, fmt.Sprintf("Failed to open data connection: %v", err))
		return
	}
	defer dataConn.Close()

	sess.SetState(registry.StateActive)
	_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: true})

	driver.Bridge(dataConn)

	c.finishSession(sess, "closed by server")
}

func (c *Client) runTunnel(sess *registry.Session) {
	jumps := jumpHostsFromParams(sess)
	target := sshtransport.HostAuthFromParams(sess.Host, sess.Port, sess)
	remoteHost := sess.ParamOr("remoteHost", sess.Host)
	remotePort, _ := strconv.Atoi(sess.ParamOr("remotePort", strconv.Itoa(sess.Port)))

	dataConn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("Failed to open data connection: %v", err))
		return
	}
	defer dataConn.Close()

	// Report success only once the SSH dial and direct-tcpip open have both
	// succeeded (spec §4.4 Tunnel mode, §7 "target connect failure ->
	// SessionOpenResult(false)"); onReady fires after tunneldriver.Run has
	// already opened the channel but before it starts bridging.
	reported := false
	onReady := func() {
		reported = true
		sess.SetState(registry.StateActive)
		_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: true})
	}

	err = tunneldriver.Run(sess.Ctx, tunnelLimiter, jumps, target, remoteHost, remotePort, dataConn, onReady)
	if err != nil && !reported {
		c.failOpen(sess, fmt.Sprintf("Failed to open tunnel: %v", err))
		return
	}
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("tunnel ended with error")
	}

	c.finishSession(sess, "closed by server")
}

func (c *Client) failOpen(sess *registry.Session, reason string) {
	_ = c.SendSessionResult(wire.SessionOpenResult{SessionID: sess.ID, Success: false, ErrorMessage: reason})
	c.Registry.Remove(sess.ID)
}

func (c *Client) finishSession(sess *registry.Session, reason string) {
	sess.SetState(registry.StateClosing)
	c.Registry.Remove(sess.ID)
	_ = c.SendSessionClosed(sess.ID, reason)
}

// handleSessionClose finds the session, closes its connection (unblocking
// the driver's bridge), and lets runDriver's own finishSession publish
// SessionClosed. A missing id is a silent no-op (spec §8 round-trip
// property).
func (c *Client) handleSessionClose(req wire.SessionClose) {
	sess, ok := c.Registry.Find(req.SessionID)
	if !ok {
		return
	}
	_ = sess.Close()
}

// handleSessionResize forwards a resize to the matching driver when the
// session is Active; otherwise it is silently dropped (spec §8 boundary).
func (c *Client) handleSessionResize(req wire.SessionResize) {
	sess, ok := c.Registry.Find(req.SessionID)
	if !ok || sess.State() != registry.StateActive {
		return
	}
	switch sess.Kind {
	case registry.KindTelnet:
		if driver, ok := getTelnetDriver(sess.ID); ok {
			_ = driver.Resize(req.Cols, req.Rows)
		}
	case registry.KindSSH:
		if shell, ok := getSSHShell(sess.ID); ok {
			_ = shell.Resize(req.Cols, req.Rows)
		}
	default:
		// Other session kinds have no notion of a terminal size.
	}
}

// handleSessionJoin invokes the join-fd path (spec §4.5 "Join request"):
// open a fresh data connection for the joiner, dup its fd, and hand it off
// to the session's rendezvous over SCM_RIGHTS. A session with no attached
// graphical driver (wrong kind, or not yet Active) is a silent no-op.
func (c *Client) handleSessionJoin(req wire.SessionJoin) {
	sess, ok := c.Registry.Find(req.SessionID)
	if !ok || sess.State() != registry.StateActive {
		return
	}
	gsess, ok := getGraphicalSession(sess.ID)
	if !ok {
		logger.Debug().Str("session_id", sess.ID).Msg("session join requested but no graphical driver is attached")
		return
	}

	conn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session join: failed to open data connection")
		return
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		logger.Warn().Str("session_id", sess.ID).Msg("session join: data connection is not TCP, cannot pass its fd")
		return
	}
	f, err := tc.File()
	conn.Close()
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session join: dup fd failed")
		return
	}
	defer f.Close()

	if err := graphical.SendJoinFD(gsess.Rendezvous(), f); err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session join: send fd failed")
	}
}

type ioReader interface{ Read([]byte) (int, error) }
type ioWriter interface{ Write([]byte) (int, error) }
