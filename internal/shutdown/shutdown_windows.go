//go:build windows

package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// Console control event codes (spec §6).
const (
	ctrlCEvent        = 0
	ctrlCloseEvent    = 2
	ctrlLogoffEvent   = 5
	ctrlShutdownEvent = 6
)

// WatchSignals installs a Windows console control handler. CTRL_C_EVENT
// requests an ordinary shutdown; CLOSE/LOGOFF/SHUTDOWN events block the
// handler (polling at 100ms) until the process has actually finished
// shutting down, since Windows terminates the process as soon as the
// handler returns.
func (c *Coordinator) WatchSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for range sigs {
			slog.Info("received console interrupt")
			c.Request(ctrlCEvent)
		}
	}()

	handler := func(event uint32) uintptr {
		switch event {
		case ctrlCloseEvent, ctrlLogoffEvent, ctrlShutdownEvent:
			c.Request(int32(event))
			for {
				if _, done := c.Requested(); done && c.reg.LiveCount() == 0 {
					return 1
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
		return 0
	}
	cb := syscall.NewCallback(func(event uint32) uintptr { return handler(event) })
	if err := windows.SetConsoleCtrlHandler(cb, true); err != nil {
		slog.Error("failed to install console control handler", slog.Any("err", err))
	}
}
