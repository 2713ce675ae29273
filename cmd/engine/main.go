// Command engine is the remote-access engine process: one persistent
// control-plane link to a coordinator, proxying on-demand VNC/RDP/SSH/
// SFTP/Telnet/Tunnel sessions (spec §1, §6.4).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/websoft9/appos/engine/internal/config"
	"github.com/websoft9/appos/engine/internal/logging"
	"github.com/websoft9/appos/engine/internal/supervisor"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel)
	log := logging.For("main")

	// Broken writes (a peer closing its read side mid-send) become plain
	// I/O errors handled by each driver; the process itself must never die
	// to SIGPIPE (spec §7).
	signal.Ignore(syscall.SIGPIPE)

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("starting engine")

	sv := supervisor.New(cfg.Host, cfg.Port, cfg.RegistrationToken)
	sv.Run(nil)

	log.Info().Msg("engine stopped")
}
