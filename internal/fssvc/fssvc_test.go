package fssvc

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

type recorder struct {
	ch chan envelope.Envelope
}

func newRecorder() *recorder { return &recorder{ch: make(chan envelope.Envelope, 8)} }

func (r *recorder) Send(env envelope.Envelope) error {
	r.ch <- env
	return nil
}

func (r *recorder) result(t *testing.T) Result {
	t.Helper()
	select {
	case env := <-r.ch:
		b, ok := env.Payload.Bytes()
		if !ok {
			t.Fatal("reply payload was not a Bytes payload")
		}
		var res Result
		if err := json.Unmarshal(b, &res); err != nil {
			t.Fatalf("json.Unmarshal(reply) error = %v", err)
		}
		return res
	case <-time.After(time.Second):
		t.Fatal("no reply was sent")
		return Result{}
	}
}

func newService(t *testing.T) (*Service, *registry.Registry, int64, *recorder) {
	t.Helper()
	reg := registry.New()
	svc, err := Register(reg, reg.NextActorID())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	caller := newRecorder()
	callerID := reg.NextActorID()
	_ = reg.Add(callerID, "", caller)
	return svc, reg, callerID, caller
}

func send(t *testing.T, reg *registry.Registry, fsID, callerID int64, cmd Command) envelope.Envelope {
	t.Helper()
	b, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("json.Marshal(cmd) error = %v", err)
	}
	return envelope.New(envelope.SYSTEM, callerID, fsID, 1, envelope.BytesPayload(b))
}

func TestReadWriteRoundTrip(t *testing.T) {
	svc, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "write", Path: path, Data: []byte("hello")})); err != nil {
		t.Fatalf("Send(write) error = %v", err)
	}
	if r := caller.result(t); r.Type != "write" || r.Size != 5 {
		t.Fatalf("write result = %+v, want Type=write Size=5", r)
	}

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "read", Path: path})); err != nil {
		t.Fatalf("Send(read) error = %v", err)
	}
	if r := caller.result(t); r.Type != "read" || string(r.Data) != "hello" {
		t.Fatalf("read result = %+v, want Type=read Data=hello", r)
	}
	_ = svc
}

func TestReadMissingFileReturnsError(t *testing.T) {
	_, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	path := filepath.Join(t.TempDir(), "missing.txt")
	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "read", Path: path})); err != nil {
		t.Fatalf("Send(read) error = %v", err)
	}
	if r := caller.result(t); r.Type != "error" || r.Err == "" {
		t.Fatalf("read-missing result = %+v, want a non-empty error", r)
	}
}

func TestStatReportsSizeAndDir(t *testing.T) {
	_, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	_ = reg.Send(send(t, reg, fsID, callerID, Command{Type: "write", Path: path, Data: []byte("abcd")}))
	caller.result(t) // write reply

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "stat", Path: path})); err != nil {
		t.Fatalf("Send(stat) error = %v", err)
	}
	if r := caller.result(t); r.Type != "stat" || r.Size != 4 || r.IsDir {
		t.Fatalf("stat(file) result = %+v, want Type=stat Size=4 IsDir=false", r)
	}

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "stat", Path: dir})); err != nil {
		t.Fatalf("Send(stat dir) error = %v", err)
	}
	if r := caller.result(t); !r.IsDir {
		t.Fatalf("stat(dir) result = %+v, want IsDir=true", r)
	}
}

func TestListReturnsEntries(t *testing.T) {
	_, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	dir := t.TempDir()
	_ = reg.Send(send(t, reg, fsID, callerID, Command{Type: "write", Path: filepath.Join(dir, "a.txt"), Data: []byte("1")}))
	caller.result(t)
	_ = reg.Send(send(t, reg, fsID, callerID, Command{Type: "write", Path: filepath.Join(dir, "b.txt"), Data: []byte("2")}))
	caller.result(t)

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "list", Path: dir})); err != nil {
		t.Fatalf("Send(list) error = %v", err)
	}
	r := caller.result(t)
	if r.Type != "list" || len(r.Entries) != 2 {
		t.Fatalf("list result = %+v, want 2 entries", r)
	}
}

func TestUnknownCommandTypeReturnsError(t *testing.T) {
	_, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	if err := reg.Send(send(t, reg, fsID, callerID, Command{Type: "delete", Path: "whatever"})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if r := caller.result(t); r.Type != "error" {
		t.Fatalf("unknown command result = %+v, want Type=error", r)
	}
}

func TestNonBytesPayloadRejected(t *testing.T) {
	_, reg, callerID, caller := newService(t)
	fsID, _ := reg.Query("fs")

	env := envelope.New(envelope.SYSTEM, callerID, fsID, 1, envelope.IntegerPayload(9))
	if err := reg.Send(env); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case got := <-caller.ch:
		if got.Ptype != envelope.ERROR {
			t.Fatalf("reply ptype = %s, want ERROR for a non-command payload", got.Ptype)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply was sent for a non-bytes payload")
	}
}
