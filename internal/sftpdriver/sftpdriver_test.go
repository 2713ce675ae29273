package sftpdriver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	cryptossh "golang.org/x/crypto/ssh"
)

// testSFTPServer is an in-process SSH server that serves the real SFTP
// subsystem (github.com/pkg/sftp's server side) rooted at a temp directory,
// letting the driver be exercised against genuine SFTP wire semantics
// without a real remote host.
type testSFTPServer struct {
	addr string
	root string
}

func startTestSFTPServer(t *testing.T, user, pass string) *testSFTPServer {
	t.Helper()

	root := t.TempDir()

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
			return nil, sshtransport.ErrAuthFailed
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &testSFTPServer{addr: ln.Addr().String(), root: root}

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

func (s *testSFTPServer) handleConn(conn net.Conn, cfg *cryptossh.ServerConfig) {
	sconn, chans, reqs, err := cryptossh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go cryptossh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(cryptossh.UnknownChannelType, "unsupported")
			continue
		}
		go s.handleSession(newCh)
	}
}

func (s *testSFTPServer) handleSession(newCh cryptossh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		if req.Type != "subsystem" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}
		name := string(req.Payload[4:])
		if name != "sftp" {
			req.Reply(false, nil)
			continue
		}
		req.Reply(true, nil)

		server, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.root))
		if err != nil {
			return
		}
		server.Serve()
		return
	}
}

func dialTestClient(t *testing.T, srv *testSFTPServer, user, pass string) *Client {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chain, err := sshtransport.Dial(ctx, nil, sshtransport.HostAuth{
		Host: host, Port: port, User: user, Password: pass,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client, err := Open(chain)
	if err != nil {
		t.Fatalf("open sftp: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestListDirAndMkdir(t *testing.T) {
	srv := startTestSFTPServer(t, "u", "p")
	client := dialTestClient(t, srv, "u", "p")

	if err := client.Mkdir("sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srv.root, "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := client.ListDir(".")
	if err != nil {
		t.Fatalf("listdir: %v", err)
	}
	var sawDir, sawFile bool
	for _, e := range entries {
		if e.Name == "sub" && e.IsDir {
			sawDir = true
		}
		if e.Name == "file.txt" && !e.IsDir {
			sawFile = true
		}
	}
	if !sawDir || !sawFile {
		t.Fatalf("missing expected entries: %+v", entries)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	srv := startTestSFTPServer(t, "u", "p")
	client := dialTestClient(t, srv, "u", "p")

	if err := client.WriteBegin("out.txt"); err != nil {
		t.Fatalf("write begin: %v", err)
	}
	if err := client.WriteData([]byte("payload bytes")); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := client.WriteEnd(); err != nil {
		t.Fatalf("write end: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(srv.root, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestRmdirRecursive(t *testing.T) {
	srv := startTestSFTPServer(t, "u", "p")
	client := dialTestClient(t, srv, "u", "p")

	nested := filepath.Join(srv.root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "leaf.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := client.Rmdir("a", true); err != nil {
		t.Fatalf("rmdir recursive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(srv.root, "a")); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, stat err = %v", err)
	}
}

func TestSearchDirsPrefixAndTrailingSlash(t *testing.T) {
	srv := startTestSFTPServer(t, "u", "p")
	client := dialTestClient(t, srv, "u", "p")

	for _, d := range []string{"apples", "applesauce", "banana"} {
		if err := os.Mkdir(filepath.Join(srv.root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	inside, err := client.SearchDirs("./", 20)
	if err != nil {
		t.Fatalf("search inside: %v", err)
	}
	if len(inside) != 3 {
		t.Fatalf("want 3 dirs inside base, got %d: %v", len(inside), inside)
	}

	prefixed, err := client.SearchDirs("./appl", 20)
	if err != nil {
		t.Fatalf("search prefix: %v", err)
	}
	if len(prefixed) != 2 {
		t.Fatalf("want 2 prefix matches, got %d: %v", len(prefixed), prefixed)
	}
}

func TestExecEcho(t *testing.T) {
	srv := startTestSFTPServer(t, "u", "p")
	_ = srv
	t.Skip("exec requires a session channel alongside the sftp subsystem, which this test server does not serve; Client.Exec is not exercised here")
}
