// Package wire implements the length-prefixed framing codec and the
// tagged-union message envelopes shared by the control plane and the SFTP
// driver (spec §4.1, §6.1, §6.3).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultMaxFrameSize is the cap used by the control plane and the SFTP
// channel: 16 MiB.
const DefaultMaxFrameSize = 16 << 20

// ErrTruncated is returned when a frame's declared length could not be read
// in full before EOF.
var ErrTruncated = errors.New("wire: truncated frame")

// ErrZeroLength is returned for a frame whose declared length is zero.
var ErrZeroLength = errors.New("wire: zero-length frame rejected")

// ErrOversize is returned for a frame whose declared length exceeds the
// caller-supplied maximum.
var ErrOversize = errors.New("wire: frame exceeds maximum size")

// ErrTimeout is returned by TryReadFrame when the deadline elapses before a
// whole frame was read; it is not a framing error.
var ErrTimeout = errors.New("wire: read timeout")

// ReadFrame reads one length-prefixed frame from r: a big-endian uint32
// length followed by exactly that many payload bytes. A declared length of
// zero or greater than maxSize fails without consuming the payload.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("wire: read length prefix: %w", ErrTruncated)
		}
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrZeroLength
	}
	if n > maxSize {
		return nil, fmt.Errorf("wire: declared length %d: %w", n, ErrOversize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("wire: read payload: %w", ErrTruncated)
		}
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w. The write is exact: a
// short write is surfaced as an error, never silently retried. Callers that
// share a single underlying stream across goroutines must serialize calls
// to WriteFrame themselves (the control plane does this with a send mutex).
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrZeroLength
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// TryReadFrame reads one frame from conn, bounding the wait with timeout.
// It is the non-blocking variant of ReadFrame (spec §4.1, standing in for
// the source's poll()-based design); only tests call it in this module.
// ErrTimeout is returned unwrapped whenever the deadline elapses, including
// part-way through a frame, in which case the bytes already read are
// discarded; any other error is a genuine framing or connection failure.
func TryReadFrame(conn net.Conn, timeout time.Duration, maxSize uint32) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("wire: set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	payload, err := ReadFrame(conn, maxSize)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return payload, nil
}
