// Package logging configures the process-wide zerolog logger and hands out
// component-tagged sub-loggers, grounded on cmd/server/main.go's
// setupLogger and internal/server/middleware's request-logging style.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// dynamicWriter forwards every write to whichever io.Writer Init last
// installed. Every package-level `var logger = logging.For("x")` runs at
// import time, before main calls Init, so each component logger's writer
// must be resolved at emit time rather than captured once at For's call
// site — otherwise --log debug|trace's console formatting would never
// reach a single already-constructed sub-logger.
type dynamicWriter struct {
	w atomic.Pointer[io.Writer]
}

func (d *dynamicWriter) Write(p []byte) (int, error) {
	if w := d.w.Load(); w != nil {
		return (*w).Write(p)
	}
	return os.Stderr.Write(p)
}

var output = &dynamicWriter{}

var globalLogger = zerolog.New(output).With().Timestamp().Logger()

// Init configures the global zerolog logger. level is one of
// error|warn|info|debug|trace (spec §6.4's --log flag); unrecognized values
// fall back to info. debug and trace use a human-readable console writer;
// everything else emits JSON lines, matching the teacher's
// LogFormat=json/console split.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = os.Stderr
	if lvl <= zerolog.DebugLevel {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	output.w.Store(&w)
	zerolog.DefaultContextLogger = &globalLogger
}

// For returns a sub-logger tagged with component, the way the teacher tags
// each HTTP handler's log lines. Safe to call at package-init time, before
// Init runs: the returned logger shares output's writer, so it picks up
// whatever format Init later installs.
func For(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}
