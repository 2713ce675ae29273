package controlplane

import (
	"sync"

	"github.com/websoft9/appos/engine/internal/graphical"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	"github.com/websoft9/appos/engine/internal/telnetdriver"
)

// telnetDrivers, sshShells, and graphicalSessions track the one
// protocol-specific handle each active session exposes, keyed by session
// id. A registry.Session itself stays protocol-agnostic (just an
// id/state/params/Closer), so these small side tables are where
// SessionResize and SessionJoin look up what to forward to.
var (
	telnetMu      sync.Mutex
	telnetDrivers = make(map[string]*telnetdriver.Driver)

	sshMu     sync.Mutex
	sshShells = make(map[string]*sshtransport.Shell)

	graphicalMu       sync.Mutex
	graphicalSessions = make(map[string]*graphical.Session)
)

func setTelnetDriver(sessionID string, d *telnetdriver.Driver) {
	telnetMu.Lock()
	telnetDrivers[sessionID] = d
	telnetMu.Unlock()
}

func getTelnetDriver(sessionID string) (*telnetdriver.Driver, bool) {
	telnetMu.Lock()
	defer telnetMu.Unlock()
	d, ok := telnetDrivers[sessionID]
	return d, ok
}

func clearTelnetDriver(sessionID string) {
	telnetMu.Lock()
	delete(telnetDrivers, sessionID)
	telnetMu.Unlock()
}

func setSSHShell(sessionID string, s *sshtransport.Shell) {
	sshMu.Lock()
	sshShells[sessionID] = s
	sshMu.Unlock()
}

func getSSHShell(sessionID string) (*sshtransport.Shell, bool) {
	sshMu.Lock()
	defer sshMu.Unlock()
	s, ok := sshShells[sessionID]
	return s, ok
}

func clearSSHShell(sessionID string) {
	sshMu.Lock()
	delete(sshShells, sessionID)
	sshMu.Unlock()
}

func setGraphicalSession(sessionID string, s *graphical.Session) {
	graphicalMu.Lock()
	graphicalSessions[sessionID] = s
	graphicalMu.Unlock()
}

func getGraphicalSession(sessionID string) (*graphical.Session, bool) {
	graphicalMu.Lock()
	defer graphicalMu.Unlock()
	s, ok := graphicalSessions[sessionID]
	return s, ok
}

func clearGraphicalSession(sessionID string) {
	graphicalMu.Lock()
	delete(graphicalSessions, sessionID)
	graphicalMu.Unlock()
}
