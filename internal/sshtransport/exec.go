package sshtransport

import (
	"context"
	"fmt"
	"io"
)

// ExecOutputCap is the per-stream truncation limit for Exec (spec §4.4: 256
// KiB per stream, truncated silently).
const ExecOutputCap = 256 << 10

// ExecResult is the outcome of a one-shot remote command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec performs a stateless, one-shot command execution: handshake + auth
// (optionally through a jump chain), exec the command, drain stdout/stderr
// capped at ExecOutputCap each, wait for close, and capture the exit code
// (spec §4.4 "Exec mode"). Callers run Exec on a detached goroutine so the
// control-plane dispatcher never blocks (spec §4.8).
func Exec(ctx context.Context, jumps []HostAuth, target HostAuth, command string) (ExecResult, error) {
	chain, err := Dial(ctx, jumps, target)
	if err != nil {
		return ExecResult{}, err
	}
	defer chain.Close()

	sess, err := chain.Client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("sshtransport: exec session: %w", err)
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return ExecResult{}, fmt.Errorf("sshtransport: exec stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return ExecResult{}, fmt.Errorf("sshtransport: exec stderr pipe: %w", err)
	}

	if err := sess.Start(command); err != nil {
		return ExecResult{}, fmt.Errorf("sshtransport: exec start: %w", err)
	}

	outCh := make(chan string, 1)
	errCh := make(chan string, 1)
	go func() { outCh <- drainCapped(stdout) }()
	go func() { errCh <- drainCapped(stderr) }()

	waitErr := sess.Wait()
	result := ExecResult{Stdout: <-outCh, Stderr: <-errCh}

	if waitErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := waitErr.(interface{ ExitStatus() int }); ok {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}
	return result, fmt.Errorf("sshtransport: exec wait: %w", waitErr)
}

// drainCapped reads up to ExecOutputCap bytes from r and silently discards
// the remainder (spec §7: "Exec timeout / oversize output ... truncated
// silently to 256 KiB; exit code still reported").
func drainCapped(r io.Reader) string {
	buf := make([]byte, ExecOutputCap)
	n, _ := io.ReadFull(r, buf)
	if n < ExecOutputCap {
		// Short read before EOF is the common case; ReadFull already read
		// everything available up to the cap.
	} else {
		// Cap reached; drain and discard the rest so the remote command
		// doesn't block writing to a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
	return string(buf[:n])
}
