package controlplane

import "github.com/websoft9/appos/engine/internal/wire"

// sendLocked serializes one frame write under the send mutex (spec §3
// "Control-plane send mutex: held only around write_exact of a single
// frame").
func (c *Client) sendLocked(t wire.MsgType, payload any) error {
	b, err := wire.Encode(t, payload)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.WriteFrame(c.conn, b)
}

// SendSessionResult reports whether a SessionOpen succeeded.
func (c *Client) SendSessionResult(r wire.SessionOpenResult) error {
	return c.sendLocked(wire.MsgSessionOpenResult, r)
}

// SendSessionClosed reports that a session has fully torn down.
func (c *Client) SendSessionClosed(sessionID, reason string) error {
	return c.sendLocked(wire.MsgSessionClosed, wire.SessionClosed{SessionID: sessionID, Reason: reason})
}

// SendExecResult reports the outcome of an ExecCommand.
func (c *Client) SendExecResult(r wire.ExecCommandResult) error {
	return c.sendLocked(wire.MsgExecCommandResult, r)
}

// SendPortCheckResult reports the outcome of a PortCheck batch.
func (c *Client) SendPortCheckResult(r wire.PortCheckResult) error {
	return c.sendLocked(wire.MsgPortCheckResult, r)
}
