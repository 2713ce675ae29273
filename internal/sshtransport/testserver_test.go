package sshtransport

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net"
	"strconv"
	"testing"

	cryptossh "golang.org/x/crypto/ssh"
)

// testSSHServer is a minimal in-process SSH server used to exercise the
// driver without a real remote host: password auth, "exec" requests that
// echo the command back, and "direct-tcpip" forwarding to whatever address
// the client requests (letting a second testSSHServer stand in for a jump
// target).
type testSSHServer struct {
	ln   net.Listener
	addr string
}

func startTestSSHServer(t *testing.T, user, pass string) *testSSHServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := cryptossh.NewSignerFromKey(key)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &cryptossh.ServerConfig{
		PasswordCallback: func(c cryptossh.ConnMetadata, password []byte) (*cryptossh.Permissions, error) {
			if c.User() == user && string(password) == pass {
				return nil, nil
			}
			return nil, ErrAuthFailed
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &testSSHServer{ln: ln, addr: ln.Addr().String()}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn, cfg)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return srv
}

func (s *testSSHServer) handleConn(conn net.Conn, cfg *cryptossh.ServerConfig) {
	sconn, chans, reqs, err := cryptossh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go cryptossh.DiscardRequests(reqs)

	for newCh := range chans {
		switch newCh.ChannelType() {
		case "session":
			go s.handleSession(newCh)
		case "direct-tcpip":
			go s.handleDirectTCPIP(newCh)
		default:
			newCh.Reject(cryptossh.UnknownChannelType, "unsupported")
		}
	}
}

func (s *testSSHServer) handleSession(newCh cryptossh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			// Payload is a length-prefixed string; skip the 4-byte length.
			cmd := string(req.Payload[4:])
			if req.WantReply {
				req.Reply(true, nil)
			}
			io.WriteString(ch, "echo:"+cmd)
			ch.SendRequest("exit-status", false, cryptossh.Marshal(struct{ Status uint32 }{0}))
			return
		case "pty-req", "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			if req.Type == "shell" {
				io.WriteString(ch, "shell-ready")
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *testSSHServer) handleDirectTCPIP(newCh cryptossh.NewChannel) {
	var payload struct {
		Addr       string
		Port       uint32
		OriginAddr string
		OriginPort uint32
	}
	cryptossh.Unmarshal(newCh.ExtraData(), &payload)

	target, err := net.Dial("tcp", net.JoinHostPort(payload.Addr, strconv.Itoa(int(payload.Port))))
	if err != nil {
		newCh.Reject(cryptossh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := newCh.Accept()
	if err != nil {
		target.Close()
		return
	}
	go cryptossh.DiscardRequests(reqs)

	done := make(chan struct{}, 2)
	go func() { io.Copy(target, ch); done <- struct{}{} }()
	go func() { io.Copy(ch, target); done <- struct{}{} }()
	<-done
	ch.Close()
	target.Close()
}
