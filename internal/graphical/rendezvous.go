// Package graphical implements the VNC/RDP proxy driver: it does not speak
// the remote-desktop wire protocol itself, but hosts a Client/Plugin pair
// (the out-of-scope graphical-proxy library, modeled here as consumer
// interfaces) and fans connected users out over a join rendezvous (spec
// §4.5).
//
// The SCM_RIGHTS fd handoff has no ready-made receive-side precedent in
// the retrieval pack; the send side is grounded on
// ConnectToSSHMultiplex in the teleport example file, which uses exactly
// this net.UnixConn.WriteMsgUnix + syscall.UnixRights pattern. The
// matching receive side (ReadMsgUnix + syscall.ParseSocketControlMessage +
// syscall.ParseUnixRights) is the same stdlib API's other half.
package graphical

import (
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// joinMarkerByte is the 1-byte payload accompanying a join fd (spec §4.5
// Join request: "a 1-byte 'J' payload").
const joinMarkerByte = 'J'

// pollInterval is how often the accept-joins loop polls the rendezvous
// read end (spec §4.5 step 6: "poll ... with 1 s timeout").
const pollInterval = time.Second

// Rendezvous is a local AF_UNIX SOCK_DGRAM socket-pair: SessionEnd belongs
// to the session's accept-joins loop, DispatchEnd is used by the
// dispatcher to hand off new join fds (spec §4.5 step 1 / §3 "join
// rendezvous").
type Rendezvous struct {
	SessionEnd  *net.UnixConn
	DispatchEnd *net.UnixConn
}

// NewRendezvous allocates a connected datagram socket-pair standing in for
// the source's socketpair(2) call.
func NewRendezvous() (*Rendezvous, error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("graphical: socketpair: %w", err)
	}

	sessionEnd, err := fdToUnixConn(fds[0])
	if err != nil {
		syscall.Close(fds[1])
		return nil, err
	}
	dispatchEnd, err := fdToUnixConn(fds[1])
	if err != nil {
		sessionEnd.Close()
		return nil, err
	}
	return &Rendezvous{SessionEnd: sessionEnd, DispatchEnd: dispatchEnd}, nil
}

func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "rendezvous")
	conn, err := net.FileConn(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("graphical: fd to conn: %w", err)
	}
	_ = f.Close() // net.FileConn dup'd the fd; release our reference
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("graphical: expected *net.UnixConn, got %T", conn)
	}
	return uc, nil
}

// Close releases both ends.
func (r *Rendezvous) Close() {
	r.SessionEnd.Close()
	r.DispatchEnd.Close()
}

// SendJoinFD hands fd to the session thread as an SCM_RIGHTS ancillary
// message over the rendezvous's dispatch end (spec §4.5 "Join request").
func SendJoinFD(r *Rendezvous, fd *os.File) error {
	rights := syscall.UnixRights(int(fd.Fd()))
	_, _, err := r.DispatchEnd.WriteMsgUnix([]byte{joinMarkerByte}, rights, nil)
	return err
}

// ErrPollTimeout is returned by ReceiveJoinFD when no join datagram arrives
// within pollInterval (spec §4.5 step 6: "On timeout with zero connected
// users remaining -> stop").
var ErrPollTimeout = fmt.Errorf("graphical: rendezvous poll timeout")

// ReceiveJoinFD polls the rendezvous's session end for one join datagram,
// returning the passed fd as an *os.File the caller owns. It returns
// ErrPollTimeout if nothing arrives within pollInterval.
func ReceiveJoinFD(r *Rendezvous) (*os.File, error) {
	if err := r.SessionEnd.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return nil, err
	}

	buf := make([]byte, 1)
	oob := make([]byte, syscall.CmsgSpace(4))
	_, oobn, _, _, err := r.SessionEnd.ReadMsgUnix(buf, oob)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrPollTimeout
		}
		return nil, err
	}

	msgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("graphical: parse control message: %w", err)
	}
	for _, msg := range msgs {
		fds, err := syscall.ParseUnixRights(&msg)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			return os.NewFile(uintptr(fd), "joined-conn"), nil
		}
	}
	return nil, fmt.Errorf("graphical: join datagram carried no fd")
}
