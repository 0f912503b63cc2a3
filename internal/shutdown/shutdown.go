// Package shutdown implements the one-shot exit-code latch and the
// SHUTDOWN broadcast: the first caller (a signal handler or a bootstrap
// QUIT) to set the exit code wins; later callers are no-ops. Platform
// signal wiring lives in shutdown_unix.go / shutdown_windows.go.
package shutdown

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

// unset is the sentinel exit code meaning "no shutdown requested yet",
// matching the source's INT32_MAX convention.
const unset = math.MaxInt32

// Coordinator owns the exit-code latch and broadcasts SHUTDOWN envelopes
// to every registered actor on the first Request call.
type Coordinator struct {
	exitCode int32
	reg      *registry.Registry
	done     chan struct{}
}

// New builds a Coordinator bound to reg for the broadcast and live-count
// check.
func New(reg *registry.Registry) *Coordinator {
	c := &Coordinator{exitCode: unset, reg: reg, done: make(chan struct{})}
	return c
}

// Request sets the exit code if this is the first call, broadcasts
// SHUTDOWN to every registered actor, and returns whether this call won
// the race.
func (c *Coordinator) Request(code int32) bool {
	if !atomic.CompareAndSwapInt32(&c.exitCode, unset, code) {
		return false
	}
	slog.Info("shutdown requested", slog.Int("code", int(code)))
	for _, id := range c.reg.Snapshot() {
		_ = c.reg.Send(envelope.New(envelope.SHUTDOWN, 0, id, 0, envelope.None))
	}
	close(c.done)
	return true
}

// Requested reports whether shutdown has been requested, and the code if so.
func (c *Coordinator) Requested() (int32, bool) {
	v := atomic.LoadInt32(&c.exitCode)
	return v, v != unset
}

// Done returns a channel closed when Request first succeeds.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// WaitForDrain blocks until every registered actor has exited after a
// shutdown was requested, so the caller (main) knows it's safe to exit the
// process.
func (c *Coordinator) WaitForDrain() {
	<-c.done
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for c.reg.LiveCount() > 0 {
		<-ticker.C
	}
}
