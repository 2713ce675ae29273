package telnetdriver

import (
	"net"
	"testing"
	"time"
)

func TestFeedPassthrough(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	n := newNegotiator(client)

	out := n.feed([]byte("hello"))
	if string(out) != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestFeedEscapedIAC(t *testing.T) {
	_, client := net.Pipe()
	defer client.Close()
	n := newNegotiator(client)

	out := n.feed([]byte{'a', IAC, IAC, 'b'})
	if string(out) != "a\xffb" {
		t.Fatalf("got %q", out)
	}
}

func TestFeedNegotiationDoEcho(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	n := newNegotiator(client)

	replies := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		nr, _ := server.Read(buf)
		replies <- buf[:nr]
	}()

	out := n.feed([]byte{IAC, WILL, optECHO})
	if len(out) != 0 {
		t.Fatalf("negotiation bytes leaked into payload: %v", out)
	}

	select {
	case reply := <-replies:
		want := []byte{IAC, DO, optECHO}
		if string(reply) != string(want) {
			t.Fatalf("got reply %v, want %v", reply, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for negotiation reply")
	}
}

func TestFeedSplitAcrossCalls(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	n := newNegotiator(client)

	replies := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		nr, _ := server.Read(buf)
		replies <- buf[:nr]
	}()

	out1 := n.feed([]byte{'x', IAC})
	if string(out1) != "x" {
		t.Fatalf("got %q", out1)
	}
	out2 := n.feed([]byte{DO, optNAWS, 'y'})
	if string(out2) != "y" {
		t.Fatalf("got %q", out2)
	}

	select {
	case reply := <-replies:
		want := []byte{IAC, WILL, optNAWS}
		if string(reply) != string(want) {
			t.Fatalf("got reply %v, want %v", reply, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for negotiation reply")
	}
}

func TestSubnegotiationTType(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	n := newNegotiator(client)

	replies := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		nr, _ := server.Read(buf)
		replies <- buf[:nr]
	}()

	seq := []byte{IAC, SB, optTTYPE, 1, IAC, SE}
	out := n.feed(seq)
	if len(out) != 0 {
		t.Fatalf("subnegotiation leaked into payload: %v", out)
	}

	select {
	case reply := <-replies:
		want := append([]byte{IAC, SB, optTTYPE, 0}, []byte("xterm-256color")...)
		want = append(want, IAC, SE)
		if string(reply) != string(want) {
			t.Fatalf("got reply %v, want %v", reply, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ttype reply")
	}
}

func TestResizeSendsNAWS(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	d := &Driver{telnet: client}
	defer d.Close()

	replies := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		nr, _ := server.Read(buf)
		replies <- buf[:nr]
	}()

	if err := d.Resize(80, 24); err != nil {
		t.Fatalf("resize: %v", err)
	}

	select {
	case reply := <-replies:
		want := []byte{IAC, SB, optNAWS, 0, 80, 0, 24, IAC, SE}
		if string(reply) != string(want) {
			t.Fatalf("got %v, want %v", reply, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NAWS frame")
	}
}
