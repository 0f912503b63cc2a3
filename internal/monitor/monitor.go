// Package monitor implements the advisory watchdog: a periodic scan of
// per-worker "currently processing" slots that flags handlers stuck beyond
// a threshold. It never interrupts execution — only reports (spec §4.8).
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"actorkit/internal/envelope"
)

// Slot records what a worker is currently doing, for the stuck-handler
// scan.
type Slot struct {
	From  int64
	To    int64
	Ptype int8
	Start time.Time
}

// Sender is the narrow dependency the monitor needs to reach the bootstrap
// actor (address 1) with an endless_loop alert.
type Sender interface {
	Send(env envelope.Envelope) error
}

// Monitor tracks one slot per currently-dispatching actor id and scans
// them on a fixed interval.
type Monitor struct {
	mu        sync.Mutex
	slots     map[int64]Slot
	interval  time.Duration
	threshold time.Duration
	sender    Sender
	stop      chan struct{}
}

// New builds a monitor that scans every interval and flags any slot active
// longer than threshold, reporting to sender (bootstrap actor, address 1).
// Spec §4.8 default is a 5 second interval and 5 second threshold.
func New(sender Sender, interval, threshold time.Duration) *Monitor {
	return &Monitor{
		slots:     make(map[int64]Slot),
		interval:  interval,
		threshold: threshold,
		sender:    sender,
		stop:      make(chan struct{}),
	}
}

// Enter records that actor id began processing slot.
func (m *Monitor) Enter(id int64, slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[id] = slot
}

// Exit clears the slot for actor id once its handler returns.
func (m *Monitor) Exit(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, id)
}

// Run starts the periodic scan loop; it blocks until Stop is called, so
// callers should invoke it in its own goroutine.
func (m *Monitor) Run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

// Stop ends the scan loop.
func (m *Monitor) Stop() { close(m.stop) }

func (m *Monitor) scan() {
	now := time.Now()
	m.mu.Lock()
	stuck := make([]struct {
		id   int64
		slot Slot
	}, 0)
	for id, slot := range m.slots {
		if now.Sub(slot.Start) > m.threshold {
			stuck = append(stuck, struct {
				id   int64
				slot Slot
			}{id, slot})
		}
	}
	m.mu.Unlock()

	for _, s := range stuck {
		slog.Warn("possible endless loop",
			slog.Int64("actor", s.id), slog.Int64("from", s.slot.From), slog.Int("ptype", int(s.slot.Ptype)))
		if m.sender != nil {
			msg := envelope.StringPayload("endless_loop," + time.Now().Format(time.RFC3339))
			_ = m.sender.Send(envelope.New(envelope.SYSTEM, s.id, 1, 0, msg))
		}
	}
}
