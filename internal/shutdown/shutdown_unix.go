//go:build !windows

package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals installs handlers for SIGTERM, SIGINT and SIGQUIT; each
// requests shutdown with the signal number as the exit code (spec §4.9,
// §6).
func (c *Coordinator) WatchSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		for sig := range sigs {
			slog.Info("received signal", slog.String("signal", sig.String()))
			var code int32
			switch sig {
			case syscall.SIGTERM:
				code = 15
			case syscall.SIGINT:
				code = 2
			case syscall.SIGQUIT:
				code = 3
			}
			c.Request(code)
		}
	}()
}
