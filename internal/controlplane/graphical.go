package controlplane

import (
	"fmt"
	"net"

	"github.com/websoft9/appos/engine/internal/graphical"
	"github.com/websoft9/appos/engine/internal/netutil"
	"github.com/websoft9/appos/engine/internal/registry"
	"github.com/websoft9/appos/engine/internal/wire"
)

// graphicalClientAdapter satisfies graphical.Client on top of one session's
// owner data connection, standing in for the graphical-proxy library's own
// per-session handle (spec §4.5 step 3).
type graphicalClientAdapter struct {
	sess *registry.Session
	conn net.Conn
}

func (g *graphicalClientAdapter) ConnectionID() string {
	if g.sess.ConnectionID != "" {
		return g.sess.ConnectionID
	}
	return g.sess.ID
}

func (g *graphicalClientAdapter) EnableKeepAlive() error {
	if tc, ok := g.conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(netutil.KeepAlivePeriod)
	}
	return nil
}

func (g *graphicalClientAdapter) Stop() {}

// runGraphical drives one VNC/RDP session (spec §4.5): resolve the plugin
// for the session's kind, open the owner's data connection, start the
// rendezvous, and run the accept-joins loop until the owner and every
// joiner have disconnected.
func (c *Client) runGraphical(sess *registry.Session) {
	if c.GraphicalPlugins == nil {
		c.failOpen(sess, "graphical proxy plugin not configured")
		return
	}

	plugin, err := c.GraphicalPlugins(graphical.Kind(sess.Kind))
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("graphical plugin unavailable: %v", err))
		return
	}

	ownerConn, err := c.OpenDataConnection(sess.Ctx, sess.ID)
	if err != nil {
		c.failOpen(sess, fmt.Sprintf("Failed to open data connection: %v", err))
		return
	}

	client := &graphicalClientAdapter{sess: sess, conn: ownerConn}
	gsess, err := graphical.Start(plugin, client, ownerConn)
	if err != nil {
		ownerConn.Close()
		c.failOpen(sess, fmt.Sprintf("graphical session start failed: %v", err))
		return
	}
	setGraphicalSession(sess.ID, gsess)
	defer clearGraphicalSession(sess.ID)
	sess.SetCloser(func() error { gsess.Stop(); return nil })

	sess.SetState(registry.StateActive)
	_ = c.SendSessionResult(wire.SessionOpenResult{
		SessionID: sess.ID, Success: true, ConnectionID: client.ConnectionID(),
	})

	gsess.Run()

	c.finishSession(sess, "closed by server")
}
