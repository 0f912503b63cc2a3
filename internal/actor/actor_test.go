package actor

import (
	"errors"
	"testing"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/mailbox"
	"actorkit/internal/monitor"
	"actorkit/internal/registry"
	"actorkit/internal/sandbox"
	"actorkit/internal/shutdown"
)

func testCache(t *testing.T) *sandbox.Cache {
	t.Helper()
	c, err := sandbox.NewCache(8, func(path string) (sandbox.EntryPoint, error) {
		return func(params map[string]string) error { return nil }, nil
	})
	if err != nil {
		t.Fatalf("sandbox.NewCache() error = %v", err)
	}
	return c
}

func testMonitor(reg *registry.Registry) *monitor.Monitor {
	return monitor.New(reg, time.Hour, time.Hour)
}

func TestSpawnRegistersAndRuns(t *testing.T) {
	reg := registry.New()
	cache := testCache(t)

	a, err := Spawn(reg, testMonitor(reg), shutdown.New(reg), cache, Params{Name: "worker", Script: "worker.slug"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if !a.Alive() {
		t.Fatal("freshly spawned actor reports Alive() = false")
	}
	if id, ok := reg.Query("worker"); !ok || id != a.ID {
		t.Fatalf("registry.Query(worker) = (%d, %v), want (%d, true)", id, ok, a.ID)
	}

	a.Send(envelope.New(envelope.QUIT, 0, a.ID, 0, envelope.None))
	waitUntil(t, func() bool { return reg.LiveCount() == 0 })
}

func TestSpawnFailingBootstrapUnregisters(t *testing.T) {
	reg := registry.New()
	cache, err := sandbox.NewCache(8, func(path string) (sandbox.EntryPoint, error) {
		return nil, errors.New("no such script")
	})
	if err != nil {
		t.Fatalf("sandbox.NewCache() error = %v", err)
	}

	_, err = Spawn(reg, testMonitor(reg), shutdown.New(reg), cache, Params{Name: "broken", Script: "missing.slug"})
	if err == nil {
		t.Fatal("Spawn() over a failing loader returned nil error")
	}
	if reg.LiveCount() != 0 {
		t.Fatalf("LiveCount() after failed bootstrap = %d, want 0", reg.LiveCount())
	}
	if _, ok := reg.Query("broken"); ok {
		t.Fatal("a failed actor's name binding survived Spawn()")
	}
}

func TestSpawnReportsSpawnResultToCreator(t *testing.T) {
	reg := registry.New()
	cache := testCache(t)

	got := make(chan envelope.Envelope, 1)
	creatorID := reg.NextActorID()
	_ = reg.Add(creatorID, "", sendFunc(func(env envelope.Envelope) error {
		got <- env
		return nil
	}))

	a, err := Spawn(reg, testMonitor(reg), shutdown.New(reg), cache, Params{
		Script:  "child.slug",
		Creator: creatorID,
		Session: 42,
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	select {
	case env := <-got:
		if env.Ptype != envelope.INTEGER {
			t.Fatalf("spawn-result ptype = %s, want INTEGER", env.Ptype)
		}
		n, ok := env.Payload.Integer()
		if !ok || n != a.ID {
			t.Fatalf("spawn-result payload = (%d, %v), want (%d, true)", n, ok, a.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Spawn() never sent a spawn-result envelope to the creator")
	}
}

func TestDispatchInvokesHandlerAndRepliesOnError(t *testing.T) {
	reg := registry.New()
	cache := testCache(t)

	a, err := Spawn(reg, testMonitor(reg), shutdown.New(reg), cache, Params{Script: "worker.slug"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	handlerCalled := make(chan envelope.Envelope, 1)
	a.SetHandler(func(env envelope.Envelope) error {
		handlerCalled <- env
		return errors.New("handler failed")
	})

	replyTo := reg.NextActorID()
	got := make(chan envelope.Envelope, 1)
	_ = reg.Add(replyTo, "", sendFunc(func(env envelope.Envelope) error {
		got <- env
		return nil
	}))

	a.Send(envelope.New(envelope.TEXT, replyTo, a.ID, 7, envelope.StringPayload("ping")))

	select {
	case <-handlerCalled:
	case <-time.After(time.Second):
		t.Fatal("dispatch() never invoked the installed handler")
	}

	select {
	case env := <-got:
		if env.Ptype != envelope.ERROR {
			t.Fatalf("error reply ptype = %s, want ERROR", env.Ptype)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch() never sent an ERROR reply for a non-zero session")
	}
}

func TestQuitStopsTheRunLoop(t *testing.T) {
	reg := registry.New()
	cache := testCache(t)

	a, err := Spawn(reg, testMonitor(reg), shutdown.New(reg), cache, Params{Script: "worker.slug"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	a.Send(envelope.New(envelope.QUIT, 0, a.ID, 0, envelope.None))

	waitUntil(t, func() bool { return !a.Alive() })
	waitUntil(t, func() bool { return reg.LiveCount() == 0 })
}

// TestBootstrapQuitRequestsGlobalShutdown exercises spec §4.3's rule that a
// QUIT delivered to the bootstrap actor (id 1) triggers a clean global
// shutdown with code 0, rather than just tearing down that one actor.
func TestBootstrapQuitRequestsGlobalShutdown(t *testing.T) {
	reg := registry.New()
	cache := testCache(t)
	sd := shutdown.New(reg)

	// id 1 is reserved for the bootstrap actor; reg.NextActorID() starts
	// at 1, so the first Spawn() in a fresh registry gets it.
	a, err := Spawn(reg, testMonitor(reg), sd, cache, Params{Name: "bootstrap", Script: "boot.slug"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if a.ID != 1 {
		t.Fatalf("first Spawn() in a fresh registry got id %d, want 1", a.ID)
	}

	a.Send(envelope.New(envelope.QUIT, 0, a.ID, 0, envelope.None))

	select {
	case <-sd.Done():
	case <-time.After(time.Second):
		t.Fatal("bootstrap QUIT never requested global shutdown")
	}
	code, requested := sd.Requested()
	if !requested || code != 0 {
		t.Fatalf("sd.Requested() = (%d, %v), want (0, true)", code, requested)
	}
}

// TestDrainAndRejectAnswersPendingSessions exercises drainAndReject
// directly: it is only reachable through a narrow race in the run loop
// (messages queued after QUIT has already been popped but before the
// mailbox is closed), so it is tested as a unit rather than through that
// race.
func TestDrainAndRejectAnswersPendingSessions(t *testing.T) {
	reg := registry.New()

	// Built directly rather than via Spawn() so no run loop goroutine is
	// competing to drain the mailbox first.
	a := &Actor{ID: 1, mbox: mailbox.New(), reg: reg, ok: 1}

	replyTo := reg.NextActorID()
	got := make(chan envelope.Envelope, 2)
	_ = reg.Add(replyTo, "", sendFunc(func(env envelope.Envelope) error {
		got <- env
		return nil
	}))

	if err := a.mbox.Send(envelope.New(envelope.TEXT, replyTo, a.ID, 1, envelope.None)); err != nil {
		t.Fatalf("mbox.Send() error = %v", err)
	}
	if err := a.mbox.Send(envelope.New(envelope.TEXT, 0, a.ID, 0, envelope.None)); err != nil {
		t.Fatalf("mbox.Send() error = %v", err)
	}

	a.drainAndReject("shutting down")

	select {
	case env := <-got:
		if env.Ptype != envelope.ERROR {
			t.Fatalf("drained reply ptype = %s, want ERROR", env.Ptype)
		}
	case <-time.After(time.Second):
		t.Fatal("drainAndReject() never replied to the pending session-bearing envelope")
	}
	select {
	case env := <-got:
		t.Fatalf("drainAndReject() replied to a session-less envelope: %v", env)
	default:
	}
}

type sendFunc func(env envelope.Envelope) error

func (f sendFunc) Send(env envelope.Envelope) error { return f(env) }

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
