package wire

import "encoding/json"

// MsgType tags the payload carried by an Envelope (spec §6.1).
type MsgType string

const (
	MsgEngineHello       MsgType = "EngineHello"
	MsgEngineHelloAck    MsgType = "EngineHelloAck"
	MsgPing              MsgType = "Ping"
	MsgPong              MsgType = "Pong"
	MsgSessionOpen       MsgType = "SessionOpen"
	MsgSessionOpenResult MsgType = "SessionOpenResult"
	MsgSessionClose      MsgType = "SessionClose"
	MsgSessionClosed     MsgType = "SessionClosed"
	MsgSessionResize     MsgType = "SessionResize"
	MsgSessionJoin       MsgType = "SessionJoin"
	MsgExecCommand       MsgType = "ExecCommand"
	MsgExecCommandResult MsgType = "ExecCommandResult"
	MsgPortCheck         MsgType = "PortCheck"
	MsgPortCheckResult   MsgType = "PortCheckResult"
	MsgConnectionReady   MsgType = "ConnectionReady"
)

// Envelope is the control-plane frame payload: one type tag, one
// type-specific table. The schema generator that would normally produce
// this tagged-union encoding is out of scope (spec §1); the engine encodes
// the envelope with plain JSON, matching the teacher's own ad hoc JSON-
// over-raw-stream idiom in internal/terminal/docker_exec.go.
type Envelope struct {
	Type    MsgType         `json:"msg_type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals a typed payload into an Envelope-framed byte slice ready
// for WriteFrame.
func Encode(t MsgType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Decode splits a frame payload into its envelope; callers then unmarshal
// env.Payload into the concrete type matching env.Type.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}

// Param is one key/value entry in a session's parameter bag (spec §3,
// ordered, ≤ 64 entries).
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// JumpHost describes one SSH jump host hop supplied by the coordinator.
type JumpHost struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// EngineHello is sent once, immediately after the control-plane TCP
// connects.
type EngineHello struct {
	Version           string `json:"version"`
	RegistrationToken string `json:"registration_token,omitempty"`
}

// EngineHelloAck is the coordinator's reply to EngineHello.
type EngineHelloAck struct {
	Accepted      bool   `json:"accepted"`
	ServerVersion string `json:"server_version"`
}

// Ping/Pong carry a millisecond-since-epoch timestamp echoed verbatim.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// SessionOpen requests a new session of the given protocol kind.
type SessionOpen struct {
	SessionID   string     `json:"session_id"`
	SessionType string     `json:"session_type"`
	Host        string     `json:"host"`
	Port        int        `json:"port"`
	Params      []Param    `json:"params,omitempty"`
	JumpHosts   []JumpHost `json:"jump_hosts,omitempty"`
}

// SessionOpenResult reports whether SessionOpen succeeded.
type SessionOpenResult struct {
	SessionID    string `json:"session_id"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// SessionClose asks the engine to tear a session down.
type SessionClose struct {
	SessionID string `json:"session_id"`
}

// SessionClosed reports that a session has fully torn down.
type SessionClosed struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// SessionResize forwards a terminal resize to the session's protocol driver.
type SessionResize struct {
	SessionID string `json:"session_id"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
}

// SessionJoin asks the engine to hand a new data connection to a running
// graphical session as an additional viewer.
type SessionJoin struct {
	SessionID string `json:"session_id"`
}

// ExecCommand requests a stateless, one-shot remote command execution.
type ExecCommand struct {
	RequestID string     `json:"request_id"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Params    []Param    `json:"params,omitempty"`
	Command   string     `json:"command"`
	JumpHosts []JumpHost `json:"jump_hosts,omitempty"`
}

// ExecCommandResult reports the outcome of an ExecCommand.
type ExecCommandResult struct {
	RequestID    string `json:"request_id"`
	Success      bool   `json:"success"`
	StdoutData   string `json:"stdout_data,omitempty"`
	StderrData   string `json:"stderr_data,omitempty"`
	ExitCode     int    `json:"exit_code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PortCheckTarget is one host:port probed by a PortCheck batch.
type PortCheckTarget struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// PortCheck requests a batched reachability probe.
type PortCheck struct {
	RequestID string            `json:"request_id"`
	Targets   []PortCheckTarget `json:"targets"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
}

// PortCheckResultItem is one target's reachability outcome.
type PortCheckResultItem struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// PortCheckResult reports the outcome of a PortCheck batch.
type PortCheckResult struct {
	RequestID string                `json:"request_id"`
	Results   []PortCheckResultItem `json:"results"`
}

// ConnectionReady is the mandatory first frame on every data connection,
// routing it to the coordinator's matching session.
type ConnectionReady struct {
	SessionID string `json:"session_id"`
}
