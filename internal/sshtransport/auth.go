// Package sshtransport implements the SSH driver: handshake + auth, jump-
// host chaining over virtual sockets, shell/tunnel/exec modes, and the
// byte bridge (spec §4.4).
//
// Grounded on internal/terminal/ssh.go (auth method selection, PTY request,
// context-cancellable dial) and internal/tunnel/server.go (keepalive
// goroutine shape, ssh.Marshal channel-open payloads, ed25519/PEM key
// handling), both from the teacher.
package sshtransport

import (
	"fmt"

	cryptossh "golang.org/x/crypto/ssh"
)

// ErrAuthFailed is returned when neither key nor password auth is usable.
var ErrAuthFailed = fmt.Errorf("sshtransport: ssh authentication failed")

// HostAuth carries one hop's connection target and credentials, pulled
// from session params (spec §4.4: username, password, privateKey,
// passphrase) or from a wire.JumpHost entry.
type HostAuth struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	Passphrase string
}

// authMethods builds the client auth method list: public key first (if a
// PEM-encoded private key is present), password second (if present). The
// SSH library itself walks this list in order during the handshake, trying
// each method until one succeeds — that satisfies spec §4.4's "try
// public-key first; on failure, try password".
func authMethods(h HostAuth) ([]cryptossh.AuthMethod, error) {
	var methods []cryptossh.AuthMethod

	if h.PrivateKey != "" {
		signer, err := parseSigner(h.PrivateKey, h.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("sshtransport: parse private key: %w", err)
		}
		methods = append(methods, cryptossh.PublicKeys(signer))
	}
	if h.Password != "" {
		methods = append(methods, cryptossh.Password(h.Password))
	}
	if len(methods) == 0 {
		return nil, ErrAuthFailed
	}
	return methods, nil
}

func parseSigner(pemKey, passphrase string) (cryptossh.Signer, error) {
	if passphrase != "" {
		return cryptossh.ParsePrivateKeyWithPassphrase([]byte(pemKey), []byte(passphrase))
	}
	return cryptossh.ParsePrivateKey([]byte(pemKey))
}

// HostAuthFromParams reads the unprefixed username/password/privateKey/
// passphrase keys from a session's parameter bag (spec §4.4). Jump hosts'
// prefixed keys are not read here.
func HostAuthFromParams(host string, port int, params ParamSource) HostAuth {
	return HostAuth{
		Host:       host,
		Port:       port,
		User:       params.ParamOr("username", ""),
		Password:   params.ParamOr("password", ""),
		PrivateKey: params.ParamOr("privateKey", ""),
		Passphrase: params.ParamOr("passphrase", ""),
	}
}

// ParamSource is the subset of *registry.Session this package depends on,
// kept as a tiny local interface so sshtransport doesn't import registry
// for anything beyond this lookup.
type ParamSource interface {
	ParamOr(key, fallback string) string
}
