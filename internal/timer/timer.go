// Package timer implements the single-shot timer service: actors request
// delivery of a TIMER envelope after a delay; pending timers are keyed by
// their timer id.
// Grounded on the teacher's demo_time_service.go blocking-sleep-and-reply
// shape, generalized into a proper scheduled-delivery service driven by
// time.AfterFunc instead of blocking a goroutine per request.
package timer

import (
	"log/slog"
	"sync"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

// Sender is the narrow dependency the timer service needs: something that
// can route a fired timer's envelope to its owner.
type Sender interface {
	Send(env envelope.Envelope) error
}

// Service schedules single-shot timers and delivers a TIMER envelope to
// the owning actor when each one fires.
type Service struct {
	reg    *registry.Registry
	mu     sync.Mutex
	active map[int64]*time.Timer
}

// New builds a timer service that resolves owners through reg.
func New(reg *registry.Registry) *Service {
	return &Service{reg: reg, active: make(map[int64]*time.Timer)}
}

// Insert schedules delivery of a TIMER envelope to owner after delay. A
// zero or negative delay delivers immediately (spec §4.6). The returned id
// is the timer's own address (From field on the fired envelope) so
// script-side code can correlate by timer id.
func (s *Service) Insert(owner, session int64, delay time.Duration) int64 {
	id := s.reg.NextTimerID()
	fire := func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()

		env := envelope.New(envelope.TIMER, id, owner, 0, envelope.None)
		_ = session // session correlation is carried script-side per spec §4.6
		if err := s.reg.Send(env); err != nil {
			slog.Debug("timer fired for dead owner", slog.Int64("owner", owner), slog.Int64("timer", id))
		}
	}
	if delay <= 0 {
		go fire()
		return id
	}
	s.mu.Lock()
	s.active[id] = time.AfterFunc(delay, fire)
	s.mu.Unlock()
	return id
}

// Cancel stops a pending timer before it fires, if still pending. The core
// protocol has no script-visible cancel operation (spec §4.6: "achieved
// script-side by ignoring the firing message") but the service exposes it
// for orderly shutdown.
func (s *Service) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.active[id]
	if !ok {
		return false
	}
	delete(s.active, id)
	return t.Stop()
}

// Shutdown cancels every pending timer.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.active {
		t.Stop()
		delete(s.active, id)
	}
}
