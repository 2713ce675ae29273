// Package telnetdriver implements the Telnet session driver: connect to
// the target, negotiate just enough Telnet options to behave like a plain
// terminal, and bridge raw bytes to the session's data connection (spec
// §4.6).
//
// There is no Telnet library anywhere in the retrieval pack, so this state
// machine is hand-rolled directly against spec.md's literal IAC sequence
// table — a stdlib-only package, justified by the absence of any
// ecosystem precedent.
package telnetdriver

import (
	"io"
	"net"
	"strconv"

	"github.com/websoft9/appos/engine/internal/logging"
)

// Telnet protocol bytes (spec §4.6).
const (
	IAC  = 255
	SE   = 240
	SB   = 250
	WILL = 251
	WONT = 252
	DO   = 253
	DONT = 254

	optECHO  = 1
	optSGA   = 3
	optTTYPE = 24
	optNAWS  = 31
)

var logger = logging.For("telnetdriver")

// Dial connects to host:port and returns a ready-to-bridge Driver.
func Dial(host string, port int) (*Driver, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &Driver{telnet: conn}, nil
}

// Driver bridges a Telnet TCP connection to a session's data connection,
// consuming IAC option-negotiation sequences in-place and passing
// everything else straight through (spec §4.6).
type Driver struct {
	telnet net.Conn
}

// Close closes the Telnet connection.
func (d *Driver) Close() error {
	return d.telnet.Close()
}

// Resize sends an IAC SB NAWS subnegotiation reporting the new terminal
// size (spec §4.6: "Resize sends an IAC SB NAWS ... subnegotiation").
func (d *Driver) Resize(cols, rows uint16) error {
	frame := []byte{
		IAC, SB, optNAWS,
		byte(cols >> 8), byte(cols & 0xff),
		byte(rows >> 8), byte(rows & 0xff),
		IAC, SE,
	}
	_, err := d.telnet.Write(frame)
	return err
}

// Bridge runs until either side closes: telnet->data with option
// negotiation consumed in-place, and data->telnet passed through
// unchanged (spec §4.6 "On input from the data fd, write unchanged to the
// telnet socket").
func (d *Driver) Bridge(dataConn net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		d.pumpTelnetToData(dataConn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(d.telnet, dataConn)
		done <- struct{}{}
	}()

	<-done
}

// pumpTelnetToData reads raw bytes off the telnet socket, strips and
// answers IAC sequences in place, and forwards the remaining payload bytes
// to dataConn (spec §4.6's telnet-socket-input rules).
func (d *Driver) pumpTelnetToData(dataConn net.Conn) {
	neg := newNegotiator(d.telnet)
	buf := make([]byte, 4096)
	for {
		n, err := d.telnet.Read(buf)
		if n > 0 {
			out := neg.feed(buf[:n])
			if len(out) > 0 {
				if _, werr := dataConn.Write(out); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
