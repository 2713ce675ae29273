package sshtransport

import (
	"fmt"
	"io"

	cryptossh "golang.org/x/crypto/ssh"
)

// Shell wraps one SSH session channel running an interactive PTY shell
// (spec §4.4 "Shell mode"). Resize forwards cols/rows via a PTY-size
// request.
type Shell struct {
	chain   *Chain
	session *cryptossh.Session
	Stdin   io.WriteCloser
	Stdout  io.Reader
}

// OpenShell opens a session channel on chain's client, requests an
// xterm-256color PTY, and starts the remote shell.
func OpenShell(chain *Chain) (*Shell, error) {
	sess, err := chain.Client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("sshtransport: new session: %w", err)
	}

	modes := cryptossh.TerminalModes{
		cryptossh.ECHO:          1,
		cryptossh.TTY_OP_ISPEED: 14400,
		cryptossh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", 24, 80, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("sshtransport: request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("sshtransport: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("sshtransport: stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("sshtransport: start shell: %w", err)
	}

	return &Shell{chain: chain, session: sess, Stdin: stdin, Stdout: stdout}, nil
}

// Resize forwards a PTY window-change request.
func (s *Shell) Resize(cols, rows uint16) error {
	return s.session.WindowChange(int(rows), int(cols))
}

// Close closes the session channel and the whole jump chain beneath it.
func (s *Shell) Close() error {
	_ = s.session.Close()
	return s.chain.Close()
}
