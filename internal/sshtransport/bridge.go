package sshtransport

import (
	"io"
	"net"
)

// Bridge pumps bytes bidirectionally between dataConn (the session's data-
// plane connection to the coordinator) and remote (the SSH shell or tunnel
// channel) until either side closes (spec §4.4 "Byte bridge"). Go's
// runtime-scheduled, already-non-blocking net.Conn I/O lets this be two
// plain io.Copy pumps instead of the source's poll()+EAGAIN loop; the
// bridge still returns as soon as one direction reaches EOF or error,
// exactly like the source drains the residual and returns on channel EOF
// or POLLHUP.
func Bridge(dataConn net.Conn, remote io.ReadWriter) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, dataConn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(dataConn, remote)
		done <- struct{}{}
	}()
	<-done
}
