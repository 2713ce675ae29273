package sshtransport

import (
	"fmt"

	cryptossh "golang.org/x/crypto/ssh"
)

// Tunnel wraps a direct-tcpip channel opened against remoteHost:remotePort
// (spec §4.4 "Tunnel mode").
type Tunnel struct {
	chain   *Chain
	Channel cryptossh.Channel
}

// OpenTunnel opens a direct-tcpip channel from chain's client to
// remoteHost:remotePort.
func OpenTunnel(chain *Chain, remoteHost string, remotePort int) (*Tunnel, error) {
	ch, reqs, err := chain.Client.OpenChannel("direct-tcpip", directTCPIPPayload(remoteHost, remotePort))
	if err != nil {
		return nil, fmt.Errorf("sshtransport: open direct-tcpip %s:%d: %w", remoteHost, remotePort, err)
	}
	go cryptossh.DiscardRequests(reqs)
	return &Tunnel{chain: chain, Channel: ch}, nil
}

// Close closes the tunnel channel and the whole jump chain beneath it.
func (t *Tunnel) Close() error {
	_ = t.Channel.Close()
	return t.chain.Close()
}
