package controlplane

import (
	"encoding/json"

	"github.com/websoft9/appos/engine/internal/wire"
)

// dispatchHandlers returns the table that routes a decoded envelope's
// payload to its handler, keyed by msg_type: the C switch on a numeric
// msg_type, expressed in Go as a map of closures. dispatch builds the map
// afresh for every envelope, so each handler closes over c without needing
// a package-level map of methods.
func (c *Client) dispatchHandlers() map[wire.MsgType]func(json.RawMessage) {
	return map[wire.MsgType]func(json.RawMessage){
		wire.MsgEngineHelloAck: c.onEngineHelloAck,
		wire.MsgPing:           c.onPing,
		wire.MsgPong:           c.onPong,
		wire.MsgSessionOpen:    c.onSessionOpen,
		wire.MsgSessionClose:   c.onSessionClose,
		wire.MsgSessionResize:  c.onSessionResize,
		wire.MsgSessionJoin:    c.onSessionJoin,
		wire.MsgExecCommand:    c.onExecCommand,
		wire.MsgPortCheck:      c.onPortCheck,
	}
}

// dispatch routes one decoded envelope to its handler. Pong-first ordering
// (spec §8 invariant 3) falls out naturally: Ping is answered inline,
// before readLoop moves on to the next frame.
func (c *Client) dispatch(env wire.Envelope) {
	handler, ok := c.dispatchHandlers()[env.Type]
	if !ok {
		logger.Warn().Str("msg_type", string(env.Type)).Msg("controlplane: unknown tag, ignored")
		return
	}
	handler(env.Payload)
}

func (c *Client) onEngineHelloAck(payload json.RawMessage) {
	var ack wire.EngineHelloAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		logger.Warn().Err(err).Msg("controlplane: bad EngineHelloAck")
		return
	}
	if ack.Accepted {
		c.connected.Store(true)
		logger.Info().Str("server_version", ack.ServerVersion).Msg("server accepted engine")
	} else {
		logger.Warn().Msg("server rejected engine hello")
		c.running.Store(false)
	}
}

func (c *Client) onPing(payload json.RawMessage) {
	var ping wire.Ping
	if err := json.Unmarshal(payload, &ping); err != nil {
		return
	}
	_ = c.sendLocked(wire.MsgPong, wire.Pong{Timestamp: ping.Timestamp})
}

func (c *Client) onPong(payload json.RawMessage) {
	var pong wire.Pong
	_ = json.Unmarshal(payload, &pong)
	logger.Trace().Int64("timestamp", pong.Timestamp).Msg("pong received")
}

func (c *Client) onSessionOpen(payload json.RawMessage) {
	var req wire.SessionOpen
	if err := json.Unmarshal(payload, &req); err != nil {
		logger.Warn().Err(err).Msg("controlplane: bad SessionOpen")
		return
	}
	c.handleSessionOpen(req)
}

func (c *Client) onSessionClose(payload json.RawMessage) {
	var req wire.SessionClose
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.handleSessionClose(req)
}

func (c *Client) onSessionResize(payload json.RawMessage) {
	var req wire.SessionResize
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.handleSessionResize(req)
}

func (c *Client) onSessionJoin(payload json.RawMessage) {
	var req wire.SessionJoin
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.handleSessionJoin(req)
}

func (c *Client) onExecCommand(payload json.RawMessage) {
	var req wire.ExecCommand
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.handleExecCommand(req)
}

func (c *Client) onPortCheck(payload json.RawMessage) {
	var req wire.PortCheck
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	c.handlePortCheck(req)
}
