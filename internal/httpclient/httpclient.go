// Package httpclient exposes one process-wide *http.Client as an
// actor-callable service, completing requests by sending an envelope back
// to the caller rather than blocking it (spec §5: "HTTP client: one
// process-wide instance shared by all actors"). Grounded on the teacher's
// internal/foreign/slug_io_http.go fnIoHttpRequest binding, lifted from a
// synchronous VM-callable function into an async actor service so a slow
// upstream never blocks the calling actor's worker.
package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

// Command is the typed HTTP request payload.
type Command struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Result is the typed HTTP response payload.
type Result struct {
	Status  int
	Body    []byte
	Headers map[string]string
	Err     string
}

// Service fronts a shared *http.Client as a registry.Sender.
type Service struct {
	reg    *registry.Registry
	client *http.Client
}

// Register spawns the HTTP client service under id with a default 30s
// client-side timeout.
func Register(reg *registry.Registry, id int64) (*Service, error) {
	s := &Service{reg: reg, client: &http.Client{Timeout: 30 * time.Second}}
	if err := reg.Add(id, "http", s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Send(env envelope.Envelope) error {
	raw, ok := env.Payload.Bytes()
	if !ok {
		return s.reg.Send(env.ReplyError("httpclient: expected command payload"))
	}
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return s.reg.Send(env.ReplyError("httpclient: bad command: " + err.Error()))
	}

	go func() {
		result := s.do(cmd)
		b, _ := json.Marshal(result)
		_ = s.reg.Send(env.Reply(envelope.HTTP, envelope.BytesPayload(b)))
	}()
	return nil
}

func (s *Service) do(cmd Command) Result {
	req, err := http.NewRequest(cmd.Method, cmd.URL, bytes.NewReader([]byte(cmd.Body)))
	if err != nil {
		return Result{Err: err.Error()}
	}
	for k, v := range cmd.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Err: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Err: err.Error()}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return Result{Status: resp.StatusCode, Body: body, Headers: headers}
}
