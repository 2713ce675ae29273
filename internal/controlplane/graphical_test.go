package controlplane

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/websoft9/appos/engine/internal/graphical"
	"github.com/websoft9/appos/engine/internal/registry"
	"github.com/websoft9/appos/engine/internal/wire"
)

// pluginFunc adapts a function to graphical.Plugin, mirroring the fakePlugin
// pattern in internal/graphical/driver_test.go.
type pluginFunc func(client graphical.Client, owner bool) (graphical.User, error)

func (f pluginFunc) NewUser(client graphical.Client, owner bool) (graphical.User, error) {
	return f(client, owner)
}

// discardUser satisfies graphical.User by draining its connection until the
// peer closes it, standing in for the real wire library's per-user session.
type discardUser struct{}

func (discardUser) HandleConnection(conn net.Conn) error {
	_, err := io.Copy(io.Discard, conn)
	return err
}

func (discardUser) Free() {}

// TestSessionOpenVNCWiresGraphicalDriver proves a VNC SessionOpen is routed
// through the configured GraphicalPlugins factory end to end: the owner's
// data connection spawns an owner User, the running session is registered
// with a rendezvous, and a subsequent SessionJoin hands a second data
// connection's fd to the same running session as a non-owner User.
func TestSessionOpenVNCWiresGraphicalDriver(t *testing.T) {
	coord := startFakeCoordinator(t)
	defer coord.close()
	host, port := coord.addr(t)

	reg := registry.New(0)
	c := Create(host, port, "tok", reg, nil)

	userEvents := make(chan bool, 4)
	c.GraphicalPlugins = func(kind graphical.Kind) (graphical.Plugin, error) {
		if kind != graphical.KindVNC {
			t.Errorf("unexpected kind %s", kind)
		}
		return pluginFunc(func(client graphical.Client, owner bool) (graphical.User, error) {
			userEvents <- owner
			return discardUser{}, nil
		}), nil
	}

	var mu sync.Mutex
	var dataConns []net.Conn
	dataConnReady := make(chan string, 4)

	go func() {
		// First accept is the control connection; every subsequent accept
		// is a data connection opened via OpenDataConnection.
		ctrl := coord.accept(t)
		env := coord.readEnvelope(t, ctrl)
		if env.Type != wire.MsgEngineHello {
			t.Errorf("expected EngineHello, got %s", env.Type)
		}
		coord.send(t, ctrl, wire.MsgEngineHelloAck, wire.EngineHelloAck{Accepted: true})

		for {
			conn, err := coord.ln.Accept()
			if err != nil {
				return
			}
			frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
			if err != nil {
				conn.Close()
				continue
			}
			env, err := wire.Decode(frame)
			if err != nil || env.Type != wire.MsgConnectionReady {
				conn.Close()
				continue
			}
			var ready wire.ConnectionReady
			if err := json.Unmarshal(env.Payload, &ready); err != nil {
				conn.Close()
				continue
			}
			mu.Lock()
			dataConns = append(dataConns, conn)
			mu.Unlock()
			dataConnReady <- ready.SessionID
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
	if !c.Connected() {
		t.Fatal("client never observed EngineHelloAck")
	}

	payload, err := json.Marshal(wire.SessionOpen{
		SessionID: "g1", SessionType: "vnc", Host: "screen", Port: 0,
	})
	if err != nil {
		t.Fatalf("marshal session open: %v", err)
	}
	c.dispatch(wire.Envelope{Type: wire.MsgSessionOpen, Payload: payload})

	select {
	case sid := <-dataConnReady:
		if sid != "g1" {
			t.Fatalf("owner data conn session id = %q, want g1", sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for owner data connection")
	}

	select {
	case owner := <-userEvents:
		if !owner {
			t.Fatal("expected owner=true for the first graphical user")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for owner plugin.NewUser call")
	}

	gsess, ok := getGraphicalSession("g1")
	if !ok {
		t.Fatal("graphical session g1 not registered")
	}
	if gsess.Rendezvous() == nil {
		t.Fatal("graphical session has no rendezvous")
	}

	c.dispatch(wire.Envelope{Type: wire.MsgSessionJoin, Payload: mustMarshal(t, wire.SessionJoin{SessionID: "g1"})})

	select {
	case sid := <-dataConnReady:
		if sid != "g1" {
			t.Fatalf("joiner data conn session id = %q, want g1", sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for joiner data connection")
	}

	select {
	case owner := <-userEvents:
		if owner {
			t.Fatal("expected owner=false for the joined graphical user")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for joiner plugin.NewUser call")
	}

	mu.Lock()
	for _, conn := range dataConns {
		conn.Close()
	}
	mu.Unlock()
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
