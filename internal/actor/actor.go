// Package actor implements the actor lifecycle: spawn, bootstrap, the
// per-envelope run loop, and teardown, split across the two scheduler
// classes spec §4.5 describes — cooperative goroutines for ordinary
// actors, dedicated OS threads for "unique" singletons.
package actor

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/mailbox"
	"actorkit/internal/monitor"
	"actorkit/internal/registry"
	"actorkit/internal/sandbox"
	"actorkit/internal/shutdown"
)

// Handler is the VM callback registered once per actor: it receives a
// dispatched envelope and returns an error to be converted into an ERROR
// reply when the originating session is non-zero (spec §4.3).
type Handler func(env envelope.Envelope) error

// Params bootstraps an actor: the script path to load, its string
// parameters table, an optional unique name, the scheduling class, and the
// memory limit for its accountant.
type Params struct {
	Name      string
	Unique    bool
	MemLimit  int64
	Allocator sandbox.Allocator
	Script    string
	Args      map[string]string
	// Creator/Session identify the actor that spawned this one, so the
	// spawn-result Integer(new_id) reply (spec §4.3 step 8) can be routed.
	Creator int64
	Session int64
}

// Actor is one running instance: a registry id, a private mailbox, its own
// VM/accountant, and the handler the VM dispatches envelopes into.
type Actor struct {
	ID      int64
	Name    string
	Unique  bool
	VM      *sandbox.VM
	handler atomic.Value // Handler

	mbox *mailbox.Mailbox
	reg  *registry.Registry
	mon  *monitor.Monitor
	sd   *shutdown.Coordinator

	ok int32 // atomic bool: cleared on QUIT
}

// Send implements registry.Sender.
func (a *Actor) Send(env envelope.Envelope) error {
	return a.mbox.Send(env)
}

// Spawn creates, registers and bootstraps a new actor per spec §4.3. On
// success it returns the running Actor; on bootstrap failure it unregisters
// the new id, sends the Integer(0) failure marker (spec table §4.11) to the
// creator when both Creator and Session are set, and returns an error. sd
// is used only by the bootstrap actor (id 1): a QUIT
// delivered to it requests a clean global shutdown with code 0.
func Spawn(reg *registry.Registry, mon *monitor.Monitor, sd *shutdown.Coordinator, cache *sandbox.Cache, p Params) (*Actor, error) {
	id := reg.NextActorID()

	acct := sandbox.NewAccountant(p.MemLimit)
	acct.OnWarn(func(live, warning int64) {
		slog.Warn("actor memory usage crossed warning watermark",
			slog.Int64("actor", id), slog.Int64("live", live), slog.Int64("warning", warning))
	})
	acct.OnLimitHit(func(live, attempted int64) {
		slog.Error("actor memory limit exceeded",
			slog.Int64("actor", id), slog.Int64("live", live), slog.Int64("attempted", attempted))
	})

	vm := sandbox.New(acct, p.Allocator, cache)

	a := &Actor{
		ID:     id,
		Name:   p.Name,
		Unique: p.Unique,
		VM:     vm,
		mbox:   mailbox.New(),
		reg:    reg,
		mon:    mon,
		sd:     sd,
		ok:     1,
	}
	vm.SetExtra(a)

	if err := reg.Add(id, p.Name, a); err != nil {
		return nil, err
	}

	if err := bootstrap(a, vm, p); err != nil {
		reg.Remove(id)
		if p.Creator != 0 && p.Session != 0 {
			_ = reg.Send(envelope.New(envelope.INTEGER, id, p.Creator, p.Session, envelope.IntegerPayload(0)))
		}
		return nil, fmt.Errorf("actor %d bootstrap: %w", id, err)
	}

	if p.Creator != 0 && p.Session != 0 {
		_ = reg.Send(envelope.New(envelope.INTEGER, id, p.Creator, p.Session, envelope.IntegerPayload(id)))
	}

	if p.Unique {
		go a.runUnique()
	} else {
		go a.runCooperative()
	}

	return a, nil
}

// bootstrap performs spec §4.3 steps 4-7: load the script through the
// cache, push a protected-init call with the actor's parameter table, and
// report the traceback on failure.
func bootstrap(a *Actor, vm *sandbox.VM, p Params) error {
	if err := vm.Load(p.Script); err != nil {
		return err
	}
	traceback, err := vm.ProtectedCall(p.Args)
	if err != nil {
		if traceback != "" {
			slog.Error("actor init failed", slog.Int64("actor", a.ID), slog.String("traceback", traceback))
		}
		return err
	}
	return nil
}

// SetHandler installs the per-envelope handler invoked by the run loop.
// Handlers may be swapped at runtime (e.g. the reference sandbox rebinding
// after a hot-reloaded script), so it's stored behind an atomic.Value.
func (a *Actor) SetHandler(h Handler) { a.handler.Store(h) }

func (a *Actor) callHandler(env envelope.Envelope) error {
	v := a.handler.Load()
	if v == nil {
		return nil
	}
	return v.(Handler)(env)
}

// runUnique runs the dispatch loop on a dedicated OS thread with blocking
// receive, for singleton actors (bootstrap, admin, DB connections holding
// an open transaction) that need to perform blocking syscalls freely
// (spec §4.5).
func (a *Actor) runUnique() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		env, ok := a.mbox.Recv()
		if !ok {
			break
		}
		if a.dispatch(env) {
			break
		}
	}
	a.teardown()
}

// runCooperative runs the dispatch loop as a goroutine on the shared pool,
// pulling from the mailbox's channel relay.
func (a *Actor) runCooperative() {
	ch := a.mbox.Chan()
	for env := range ch {
		if a.dispatch(env) {
			break
		}
	}
	a.teardown()
}

// dispatch handles one envelope per spec §4.3's run-loop description,
// returning true when the loop should stop.
func (a *Actor) dispatch(env envelope.Envelope) bool {
	if env.Ptype == envelope.QUIT {
		atomic.StoreInt32(&a.ok, 0)
		if a.ID == 1 && a.sd != nil {
			slog.Info("bootstrap actor quit; requesting global shutdown")
			a.sd.Request(0)
		}
		a.drainAndReject("actor quited")
		return true
	}

	slot := monitor.Slot{From: env.From, To: a.ID, Ptype: int8(env.Ptype), Start: time.Now()}
	if a.mon != nil {
		a.mon.Enter(a.ID, slot)
		defer a.mon.Exit(a.ID)
	}

	if err := a.callHandler(env); err != nil {
		if env.Session != 0 {
			_ = a.reg.Send(env.ReplyError(err.Error()))
		} else {
			slog.Debug("actor handler error (no session, not replied)",
				slog.Int64("actor", a.ID), slog.String("err", err.Error()))
		}
	}
	return false
}

// drainAndReject empties the mailbox and answers every still-pending
// request-shaped envelope with an ERROR reply carrying msg, per spec
// §4.3's QUIT handling.
func (a *Actor) drainAndReject(msg string) {
	for _, env := range a.mbox.Close() {
		if env.Session != 0 {
			_ = a.reg.Send(env.ReplyError(msg))
		}
	}
}

func (a *Actor) teardown() {
	a.reg.Remove(a.ID)
}

// Alive reports whether the actor has not yet processed a QUIT envelope.
func (a *Actor) Alive() bool { return atomic.LoadInt32(&a.ok) == 1 }
