// Package fssvc implements the filesystem actor service: read/write/stat/
// list requests dispatched over the envelope protocol like any other
// service. Grounded on the teacher's internal/svc/fs/fs_service.go and
// fs.go Read/Write request-response shape, generalized to a single
// command envelope with a "type" discriminator and extended with
// stat/list per SPEC_FULL.md's domain-stack expansion.
package fssvc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

// Command is the typed request a filesystem actor understands.
type Command struct {
	Type string // read | write | stat | list
	Path string
	Data []byte
}

// Result is the typed reply.
type Result struct {
	Type    string
	Data    []byte
	Size    int64
	ModTime time.Time
	IsDir   bool
	Entries []string
	Err     string
}

// Service is a single-actor filesystem front; a process normally registers
// one under a well-known name, the same way the teacher's Fs service is a
// process-wide singleton.
type Service struct {
	reg *registry.Registry
}

// Register spawns the filesystem service under id, returned by the
// caller's actor-spawn path (fssvc has no VM of its own — it is a plain
// registry.Sender, like the network and timer services).
func Register(reg *registry.Registry, id int64) (*Service, error) {
	s := &Service{reg: reg}
	if err := reg.Add(id, "fs", s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Send(env envelope.Envelope) error {
	raw, ok := env.Payload.Bytes()
	if !ok {
		return s.reg.Send(env.ReplyError("fssvc: expected command payload"))
	}
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return s.reg.Send(env.ReplyError("fssvc: bad command: " + err.Error()))
	}
	result := s.handle(cmd)
	b, _ := json.Marshal(result)
	return s.reg.Send(env.Reply(env.Ptype, envelope.BytesPayload(b)))
}

func (s *Service) handle(cmd Command) Result {
	switch cmd.Type {
	case "read":
		data, err := os.ReadFile(cmd.Path)
		if err != nil {
			return Result{Type: "error", Err: err.Error()}
		}
		return Result{Type: "read", Data: data}
	case "write":
		if err := os.WriteFile(cmd.Path, cmd.Data, 0o644); err != nil {
			return Result{Type: "error", Err: err.Error()}
		}
		return Result{Type: "write", Size: int64(len(cmd.Data))}
	case "stat":
		info, err := os.Stat(cmd.Path)
		if err != nil {
			return Result{Type: "error", Err: err.Error()}
		}
		return Result{Type: "stat", Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}
	case "list":
		entries, err := os.ReadDir(cmd.Path)
		if err != nil {
			return Result{Type: "error", Err: err.Error()}
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, filepath.Join(cmd.Path, e.Name()))
		}
		return Result{Type: "list", Entries: names}
	default:
		return Result{Type: "error", Err: fmt.Sprintf("fssvc: unknown command %q", cmd.Type)}
	}
}
