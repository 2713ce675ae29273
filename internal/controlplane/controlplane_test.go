package controlplane

import (
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/websoft9/appos/engine/internal/jobs"
	"github.com/websoft9/appos/engine/internal/registry"
	"github.com/websoft9/appos/engine/internal/wire"
)

// fakeCoordinator accepts one connection and lets the test read/write
// frames on it directly, standing in for the real coordinator process.
type fakeCoordinator struct {
	ln   net.Listener
	conn net.Conn
}

func startFakeCoordinator(t *testing.T) *fakeCoordinator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeCoordinator{ln: ln}
}

func (f *fakeCoordinator) addr(t *testing.T) (string, int) {
	host, portStr, err := net.SplitHostPort(f.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func (f *fakeCoordinator) accept(t *testing.T) net.Conn {
	t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.conn = conn
	return conn
}

func (f *fakeCoordinator) readEnvelope(t *testing.T, conn net.Conn) wire.Envelope {
	t.Helper()
	frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := wire.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func (f *fakeCoordinator) send(t *testing.T, conn net.Conn, mt wire.MsgType, payload any) {
	t.Helper()
	b, err := wire.Encode(mt, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := wire.WriteFrame(conn, b); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (f *fakeCoordinator) close() {
	if f.conn != nil {
		f.conn.Close()
	}
	f.ln.Close()
}

func TestStartHandshakeAndPingPong(t *testing.T) {
	coord := startFakeCoordinator(t)
	defer coord.close()
	host, port := coord.addr(t)

	reg := registry.New(0)
	pool := jobs.NewPool(2, 4)
	defer pool.Stop()
	c := Create(host, port, "tok", reg, pool)
	c.KeepaliveInterval = 20 * time.Millisecond

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn := coord.accept(t)
		env := coord.readEnvelope(t, conn)
		if env.Type != wire.MsgEngineHello {
			t.Errorf("expected EngineHello, got %s", env.Type)
		}
		coord.send(t, conn, wire.MsgEngineHelloAck, wire.EngineHelloAck{Accepted: true, ServerVersion: "1.0"})

		env = coord.readEnvelope(t, conn)
		if env.Type != wire.MsgPing {
			t.Errorf("expected Ping, got %s", env.Type)
		}
		var ping wire.Ping
		if err := json.Unmarshal(env.Payload, &ping); err != nil {
			t.Errorf("unmarshal ping: %v", err)
		}
		coord.send(t, conn, wire.MsgPong, wire.Pong{Timestamp: ping.Timestamp})
	}()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Connected() {
		t.Fatal("client never observed EngineHelloAck")
	}

	<-serverDone
}

func TestSessionOpenUnknownTypeRejected(t *testing.T) {
	coord := startFakeCoordinator(t)
	defer coord.close()
	host, port := coord.addr(t)

	reg := registry.New(0)
	c := Create(host, port, "tok", reg, nil)

	resultDone := make(chan struct{})
	go func() {
		defer close(resultDone)
		conn := coord.accept(t)
		coord.readEnvelope(t, conn) // hello
		coord.send(t, conn, wire.MsgEngineHelloAck, wire.EngineHelloAck{Accepted: true})

		env := coord.readEnvelope(t, conn)
		if env.Type != wire.MsgSessionOpenResult {
			t.Errorf("expected SessionOpenResult, got %s", env.Type)
			return
		}
		var res wire.SessionOpenResult
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			t.Errorf("unmarshal result: %v", err)
			return
		}
		if res.Success {
			t.Error("expected failure for unknown session type")
		}
	}()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	payload, err := json.Marshal(wire.SessionOpen{
		SessionID: "s1", SessionType: "bogus", Host: "example", Port: 1,
	})
	if err != nil {
		t.Fatalf("marshal session open: %v", err)
	}
	c.dispatch(wire.Envelope{Type: wire.MsgSessionOpen, Payload: payload})

	select {
	case <-resultDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SessionOpenResult")
	}
}
