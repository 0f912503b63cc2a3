// Package registry is the process-wide directory: address -> mailbox
// sender, name -> address for singletons, and the monotonic id allocators
// (actor, session, net-fd, timer) the rest of the runtime draws from.
package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"actorkit/internal/envelope"
)

// Sender is the narrow interface a registered actor exposes to the registry:
// enough to enqueue an envelope without the registry knowing whether the
// actor is cooperative or a dedicated-thread "unique" actor.
type Sender interface {
	// Send enqueues env for delivery. It returns an error (wrapping env)
	// only if the actor has already quit and its mailbox was dropped.
	Send(env envelope.Envelope) error
}

// ErrDuplicateName is returned by Add when a unique name is already bound.
type ErrDuplicateName struct{ Name string }

func (e ErrDuplicateName) Error() string { return "duplicate actor name: " + e.Name }

// ErrDeadService is returned (and surfaced to callers per spec §7) when an
// envelope addresses an actor id the registry does not know about.
type ErrDeadService struct{ To int64 }

func (e ErrDeadService) Error() string { return "Dead service: no actor registered for address" }

// Registry is safe for concurrent use; writes are lock-striped across a
// single RWMutex, matching the teacher's own kernel.Mu pattern — the
// actor/name maps are small enough that a single stripe never shows up as a
// bottleneck in practice.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]Sender
	byName map[string]int64
	live   int64 // len(byID), kept as a field for the shutdown coordinator's "reaches zero" check

	nextActorID int64
	nextSession map[int64]int64 // per-actor, guarded by mu
	nextNetFD   int64
	nextTimerID int64

	onRemove []func(id int64) // broadcast hooks (e.g. "_service_exit" to unique actors)
}

func New() *Registry {
	return &Registry{
		byID:        make(map[int64]Sender),
		byName:      make(map[string]int64),
		nextSession: make(map[int64]int64),
	}
}

// NextActorID allocates a monotonic id starting at 1; ids are never reused
// for the lifetime of the process.
func (r *Registry) NextActorID() int64 {
	return atomic.AddInt64(&r.nextActorID, 1)
}

// Add registers id with sender, optionally binding a unique name.
func (r *Registry) Add(id int64, name string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		if _, exists := r.byName[name]; exists {
			return ErrDuplicateName{Name: name}
		}
	}
	r.byID[id] = sender
	if name != "" {
		r.byName[name] = id
	}
	r.live++
	return nil
}

// Send looks up to; if present, enqueues and returns nil. If absent, it
// returns ErrDeadService and — when the envelope carried a session (i.e. the
// sender expects a reply) — synthesizes an ERROR reply back to env.From
// reporting "Dead service" (spec §4.11/§7). It never blocks.
func (r *Registry) Send(env envelope.Envelope) error {
	r.mu.RLock()
	sender, ok := r.byID[env.To]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("dead letter: no actor registered",
			slog.Int64("to", env.To), slog.Int64("from", env.From))
		if env.Session != 0 {
			r.mu.RLock()
			from, hasFrom := r.byID[env.From]
			r.mu.RUnlock()
			if hasFrom {
				_ = from.Send(env.ReplyError("Dead service: no actor registered for address"))
			}
		}
		return ErrDeadService{To: env.To}
	}
	return sender.Send(env)
}

// Remove unregisters id, drops any name binding, decrements the live count,
// and runs every registered OnRemove hook. Remove sends no "_service_exit"
// envelope itself, and the actor runtime installs no OnRemove hook, so no
// such broadcast reaches unique actors unless a caller registers one.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	for name, boundID := range r.byName {
		if boundID == id {
			delete(r.byName, name)
		}
	}
	delete(r.nextSession, id)
	r.live--
	hooks := r.onRemove
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(id)
	}
}

// OnRemove registers a hook invoked (outside the registry lock) whenever an
// actor is removed.
func (r *Registry) OnRemove(fn func(id int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

// Query resolves a unique name to its bound id.
func (r *Registry) Query(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// LiveCount returns the number of currently-registered actors.
func (r *Registry) LiveCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Snapshot returns every currently-registered actor id, for broadcast.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// NextSession returns the next per-actor monotonic session id, skipping
// zero (session 0 means "no reply expected").
func (r *Registry) NextSession(actor int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSession[actor]++
	if r.nextSession[actor] == 0 {
		r.nextSession[actor] = 1
	}
	return r.nextSession[actor]
}

// NextNetFD allocates a monotonic network endpoint id, skipping zero.
func (r *Registry) NextNetFD() int64 {
	for {
		v := atomic.AddInt64(&r.nextNetFD, 1)
		if v != 0 {
			return v
		}
	}
}

// NextTimerID allocates a monotonic timer id, skipping zero.
func (r *Registry) NextTimerID() int64 {
	for {
		v := atomic.AddInt64(&r.nextTimerID, 1)
		if v != 0 {
			return v
		}
	}
}
