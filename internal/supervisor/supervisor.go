// Package supervisor implements the engine's outer process loop (spec
// §4.9): start the control-plane client, reconnect with a fixed delay on
// disconnect, and tear everything down in order on a shutdown signal.
//
// Grounded on cmd/server/main.go's signal.Notify + graceful-shutdown shape,
// generalized from "stop one HTTP server" to "stop the control-plane link,
// then destroy the session registry" — the ordering spec.md's Design Notes
// calls out explicitly (stop link before destroying sessions, so no new
// work arrives mid-teardown).
package supervisor

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/websoft9/appos/engine/internal/controlplane"
	"github.com/websoft9/appos/engine/internal/jobs"
	"github.com/websoft9/appos/engine/internal/logging"
	"github.com/websoft9/appos/engine/internal/registry"
)

var logger = logging.For("supervisor")

// pollInterval is how often Run checks whether the control-plane client
// dropped its connection and needs a reconnect attempt.
const pollInterval = 1 * time.Second

// Supervisor owns the registry, worker pool, and control-plane client for
// one engine process lifetime.
type Supervisor struct {
	Host           string
	Port           int
	Token          string
	ReconnectDelay time.Duration

	Registry *registry.Registry
	Jobs     *jobs.Pool

	shuttingDown atomic.Bool
}

// New constructs a Supervisor with its own registry and worker pool.
func New(host string, port int, token string) *Supervisor {
	return &Supervisor{
		Host:           host,
		Port:           port,
		Token:          token,
		ReconnectDelay: 5 * time.Second,
		Registry:       registry.New(0),
		Jobs:           jobs.NewPool(8, 64),
	}
}

// Run starts the control-plane client, reconnecting with ReconnectDelay
// whenever the link drops, until a SIGINT/SIGTERM arrives or stop is
// closed. It returns once shutdown has fully completed.
func (sv *Supervisor) Run(stop <-chan os.Signal) {
	sigCh := make(chan os.Signal, 1)
	if stop == nil {
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		stop = sigCh
	}

	done := make(chan struct{})
	go sv.connectionLoop(done)

	<-stop
	logger.Info().Msg("shutdown signal received")
	sv.shuttingDown.Store(true)
	<-done
}

// connectionLoop is the reconnect driver: create a client, start it, wait
// for it to stop running (either from a clean Stop or a lost link), then
// either retry after ReconnectDelay or, if shutting down, destroy the
// registry and exit.
func (sv *Supervisor) connectionLoop(done chan<- struct{}) {
	defer close(done)

	for !sv.shuttingDown.Load() {
		client := controlplane.Create(sv.Host, sv.Port, sv.Token, sv.Registry, sv.Jobs)
		if err := client.Start(); err != nil {
			logger.Warn().Err(err).Msg("control-plane connect failed, will retry")
			if sv.waitOrShutdown(sv.ReconnectDelay) {
				break
			}
			continue
		}

		for client.Running() && !sv.shuttingDown.Load() {
			time.Sleep(pollInterval)
		}
		client.Stop()

		if sv.shuttingDown.Load() {
			break
		}
		logger.Warn().Msg("control-plane link lost, reconnecting")
		if sv.waitOrShutdown(sv.ReconnectDelay) {
			break
		}
	}

	logger.Info().Msg("stopping control-plane, destroying session registry")
	sv.Jobs.Stop()
	sv.Registry.Destroy()
}

// waitOrShutdown sleeps in small increments so a shutdown request
// interrupts the reconnect delay instead of waiting it out. Returns true
// if shutdown was requested during the wait.
func (sv *Supervisor) waitOrShutdown(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if sv.shuttingDown.Load() {
			return true
		}
		time.Sleep(pollInterval)
	}
	return sv.shuttingDown.Load()
}
