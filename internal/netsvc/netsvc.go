// Package netsvc implements the Network Service: listener and connection
// actors fronting TCP and WebSocket sockets, driven by command envelopes
// the way spec §4.7 describes. Grounded on the teacher's
// internal/svc/tcp/tcp_service.go Service/Listener/Connection handler
// shape and its credit-based streamSub pump, generalized from
// object.Map-keyed payloads to concrete typed commands and extended with a
// WebSocket connection kind (lguibr-pongo/server/websocket.go's
// upgrade-then-pump pattern) and a connect circuit breaker.
package netsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"actorkit/internal/envelope"
	"actorkit/internal/registry"
)

// defaultMaxReadSize is the ReadUntil size cap (spec §4.7) used when a
// command does not specify its own max_size.
const defaultMaxReadSize = 1 << 20

// DefaultConnectTimeout matches spec §4.7's "default 5000 ms timeout".
const DefaultConnectTimeout = 5 * time.Second

// Kind distinguishes the connection's framing: TCP is a raw byte stream;
// WebSocket frames reads/writes around whole messages.
type Kind int

const (
	KindTCP Kind = iota
	KindWebSocket
)

// Service owns every listener/connection endpoint, keyed by the net-fd id
// the registry allocates for it, and the per-target connect circuit
// breakers.
type Service struct {
	reg *registry.Registry

	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	endpoints map[int64]io.Closer
}

// New builds a Network Service bound to reg for fd allocation and reply
// routing.
func New(reg *registry.Registry) *Service {
	return &Service{
		reg:       reg,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		endpoints: make(map[int64]io.Closer),
	}
}

func (s *Service) breakerFor(target string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[target]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "connect:" + target,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	s.breakers[target] = b
	return b
}

// ErrCircuitOpen mirrors spec §4.11/§7's CircuitOpen failure.
var ErrCircuitOpen = errors.New("circuit open for target")

// Listen opens a TCP or WebSocket listener on addr:port, registers it under
// a new net-fd id, and returns that id so the caller can subsequently send
// it Accept commands. Mirrors the "bind" command of spec §4.7.
func (s *Service) Listen(addr, port string, kind Kind) (int64, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(addr, port))
	if err != nil {
		return 0, fmt.Errorf("netsvc: listen %s:%s: %w", addr, port, err)
	}
	id := s.reg.NextNetFD()
	l := &listener{svc: s, id: id, ln: ln, kind: kind}
	if err := s.reg.Add(id, "", l); err != nil {
		ln.Close()
		return 0, err
	}
	s.mu.Lock()
	s.endpoints[id] = ln
	s.mu.Unlock()
	return id, nil
}

// Connect dials addr:port (wrapped by a per-target circuit breaker) and
// registers the resulting connection under a new net-fd id.
func (s *Service) Connect(ctx context.Context, addr, port string, timeout time.Duration, kind Kind) (int64, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	target := net.JoinHostPort(addr, port)
	breaker := s.breakerFor(target)

	result, err := breaker.Execute(func() (any, error) {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var d net.Dialer
		return d.DialContext(dialCtx, "tcp", target)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, ErrCircuitOpen
		}
		return 0, fmt.Errorf("netsvc: connect %s: %w", target, err)
	}

	conn := result.(net.Conn)
	return s.registerConnection(conn, kind)
}

func (s *Service) registerConnection(conn net.Conn, kind Kind) (int64, error) {
	id := s.reg.NextNetFD()
	c := newConnection(s, id, conn, kind)
	if err := s.reg.Add(id, "", c); err != nil {
		conn.Close()
		return 0, err
	}
	s.mu.Lock()
	s.endpoints[id] = conn
	s.mu.Unlock()
	c.start()
	return id, nil
}

func (s *Service) unregister(id int64) {
	s.mu.Lock()
	delete(s.endpoints, id)
	s.mu.Unlock()
	s.reg.Remove(id)
}

// Close closes every open listener and connection, for shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.endpoints {
		_ = c.Close()
		delete(s.endpoints, id)
	}
}

// listener implements registry.Sender: each command envelope is handled on
// its own goroutine, so commands are not serialized and a close can run
// while an accept is still waiting for a connection.
type listener struct {
	svc  *Service
	id   int64
	ln   net.Listener
	kind Kind
	mu   sync.Mutex
}

func (l *listener) Send(env envelope.Envelope) error {
	switch env.Ptype {
	case envelope.SOCKET_TCP, envelope.WEBSOCKET:
		go l.handle(env)
		return nil
	default:
		return l.svc.reg.Send(env.ReplyError("listener: unsupported ptype"))
	}
}

func (l *listener) handle(env envelope.Envelope) {
	cmd, _ := env.Payload.Bytes()
	switch string(cmd) {
	case "accept":
		conn, err := l.ln.Accept()
		if err != nil {
			_ = l.svc.reg.Send(env.ReplyError(err.Error()))
			return
		}
		id, err := l.svc.registerConnection(conn, l.kind)
		if err != nil {
			conn.Close()
			_ = l.svc.reg.Send(env.ReplyError(err.Error()))
			return
		}
		_ = l.svc.reg.Send(env.Reply(envelope.INTEGER, envelope.StringPayload(strconv.FormatInt(id, 10))))
	case "close":
		l.ln.Close()
		l.svc.unregister(l.id)
	}
}

func (l *listener) Close() error { return l.ln.Close() }

// readRequest is one queued read command; replies are delivered via the
// service's registry once the read completes.
type readRequest struct {
	owner   int64
	session int64
	kind    string // "until" | "bytes"
	delim   []byte
	maxSize int
	size    int
	timeout time.Duration
}

// connection implements registry.Sender for an established TCP or
// WebSocket connection: a control queue for reads, processed one at a time
// by a reader goroutine that runs in an errgroup bound to the connection's
// context; the connection is torn down when that reader exits. Writes run
// synchronously on the sending goroutine and are not part of the errgroup:
// a failed write replies ERROR and leaves the connection open.
type connection struct {
	svc     *Service
	id      int64
	conn    net.Conn
	kind    Kind
	corrID  string
	reads   chan readRequest
	closeMu sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	ws *wsAdapter // non-nil when kind == KindWebSocket
}

func newConnection(svc *Service, id int64, conn net.Conn, kind Kind) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	c := &connection{
		svc:    svc,
		id:     id,
		conn:   conn,
		kind:   kind,
		corrID: uuid.NewString(),
		reads:  make(chan readRequest, 8),
		ctx:    gctx,
		cancel: cancel,
		group:  group,
	}
	if kind == KindWebSocket {
		c.ws = newWSAdapter(conn)
	}
	return c
}

func (c *connection) start() {
	c.group.Go(c.readerLoop)
	go func() {
		_ = c.group.Wait()
		c.teardown()
	}()
}

func (c *connection) teardown() {
	c.closeMu.Do(func() {
		c.cancel()
		c.conn.Close()
		c.svc.unregister(c.id)
		slog.Debug("connection closed", slog.Int64("fd", c.id), slog.String("corr", c.corrID))
	})
}

// Send implements registry.Sender: each command envelope either queues a
// read request or performs a write/close synchronously.
func (c *connection) Send(env envelope.Envelope) error {
	data, _ := env.Payload.Bytes()
	switch env.Ptype {
	case envelope.SOCKET_TCP, envelope.WEBSOCKET:
		return c.handleCommand(env, data)
	default:
		return c.svc.reg.Send(env.ReplyError("connection: unsupported ptype"))
	}
}

func (c *connection) handleCommand(env envelope.Envelope, raw []byte) error {
	cmd, rest := splitCommand(raw)
	switch cmd {
	case "read_until":
		delim, maxSize, timeout := decodeReadUntil(rest)
		select {
		case c.reads <- readRequest{owner: env.From, session: env.Session, kind: "until", delim: delim, maxSize: maxSize, timeout: timeout}:
		case <-c.ctx.Done():
			return c.svc.reg.Send(env.ReplyError("closed"))
		}
	case "read_bytes":
		size, timeout := decodeReadBytes(rest)
		select {
		case c.reads <- readRequest{owner: env.From, session: env.Session, kind: "bytes", size: size, timeout: timeout}:
		case <-c.ctx.Done():
			return c.svc.reg.Send(env.ReplyError("closed"))
		}
	case "write":
		closeAfter := len(rest) > 0 && rest[len(rest)-1] == 1
		payload := rest
		if closeAfter {
			payload = rest[:len(rest)-1]
		}
		return c.write(env, payload, closeAfter)
	case "close":
		c.teardown()
	}
	return nil
}

func splitCommand(raw []byte) (string, []byte) {
	for i, b := range raw {
		if b == ':' {
			return string(raw[:i]), raw[i+1:]
		}
	}
	return string(raw), nil
}

// decodeReadUntil parses a read_until command body shaped as
// "<max_size>:<timeout_ms>:<delim>" (spec §4.7). The delim field may itself
// contain colons, so it always takes the remainder after the first two
// fields. Either numeric field may be omitted (empty), in which case
// max_size falls back to defaultMaxReadSize and timeout to none. A body
// with no colons at all is treated as a bare delimiter, for compatibility
// with callers that never set a size cap or timeout.
func decodeReadUntil(rest []byte) (delim []byte, maxSize int, timeout time.Duration) {
	parts := bytes.SplitN(rest, []byte(":"), 3)
	if len(parts) < 3 {
		return rest, defaultMaxReadSize, 0
	}
	maxSize, ok := parseNonNegInt(parts[0])
	if !ok {
		maxSize = defaultMaxReadSize
	}
	if ms, ok := parseNonNegInt(parts[1]); ok {
		timeout = time.Duration(ms) * time.Millisecond
	}
	return parts[2], maxSize, timeout
}

// decodeReadBytes parses a read_bytes command body shaped as
// "<size>:<timeout_ms>" (spec §4.7); the timeout field is optional.
func decodeReadBytes(rest []byte) (size int, timeout time.Duration) {
	parts := bytes.SplitN(rest, []byte(":"), 2)
	size, _ = parseNonNegInt(parts[0])
	if len(parts) == 2 {
		if ms, ok := parseNonNegInt(parts[1]); ok {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return size, timeout
}

// parseNonNegInt parses an unsigned decimal integer, reporting false for an
// empty or non-numeric input rather than silently returning 0.
func parseNonNegInt(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func (c *connection) write(env envelope.Envelope, data []byte, closeAfter bool) error {
	var err error
	if c.ws != nil {
		err = c.ws.WriteMessage(data)
	} else {
		_, err = c.conn.Write(data)
	}
	if err != nil {
		return c.svc.reg.Send(env.ReplyError(err.Error()))
	}
	if env.Session != 0 {
		_ = c.svc.reg.Send(env.Reply(env.Ptype, envelope.IntegerPayload(int64(len(data)))))
	}
	if closeAfter {
		c.teardown()
	}
	return nil
}

// readerLoop is the connection's single reader task: it serializes reads
// off c.reads so only one read is ever outstanding on the socket at a
// time, replying with a SOCKET_TCP/WEBSOCKET payload on success or an
// ERROR envelope on timeout/EOF/size-cap per spec §4.7/§4.11.
func (c *connection) readerLoop() error {
	for {
		select {
		case <-c.ctx.Done():
			c.drainReads()
			return c.ctx.Err()
		case req := <-c.reads:
			if err := c.serviceRead(req); err != nil {
				c.drainReads()
				return err
			}
		}
	}
}

func (c *connection) drainReads() {
	for {
		select {
		case req := <-c.reads:
			_ = c.svc.reg.Send(envelope.New(envelope.ERROR, c.id, req.owner, req.session, envelope.StringPayload("closed")))
		default:
			return
		}
	}
}

func (c *connection) serviceRead(req readRequest) error {
	if req.timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(req.timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var payload []byte
	var err error
	maxSize := req.maxSize
	if maxSize <= 0 {
		maxSize = defaultMaxReadSize
	}
	switch req.kind {
	case "until":
		payload, err = readUntilDelim(c, req.delim, maxSize)
	case "bytes":
		payload, err = readExactly(c, req.size)
	}

	replyTo := envelope.New(envelope.SOCKET_TCP, req.owner, c.id, req.session, envelope.None)
	if c.kind == KindWebSocket {
		replyTo.Ptype = envelope.WEBSOCKET
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			_ = c.svc.reg.Send(replyTo.ReplyError("eof"))
		} else {
			_ = c.svc.reg.Send(replyTo.ReplyError(err.Error()))
		}
		return err
	}
	_ = c.svc.reg.Send(replyTo.Reply(replyTo.Ptype, envelope.BytesPayload(payload)))
	return nil
}

func readUntilDelim(c *connection, delim []byte, maxSize int) ([]byte, error) {
	if c.ws != nil {
		return c.ws.ReadMessage()
	}
	buf := make([]byte, 0, 256)
	one := make([]byte, 1)
	for {
		if len(buf) >= maxSize {
			return nil, fmt.Errorf("max read size limit")
		}
		n, err := c.conn.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
			if hasSuffix(buf, delim) {
				return buf[:len(buf)-len(delim)], nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func readExactly(c *connection, size int) ([]byte, error) {
	if c.ws != nil {
		msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if len(msg) < size {
			return nil, fmt.Errorf("short message")
		}
		return msg[:size], nil
	}
	buf := make([]byte, size)
	_, err := io.ReadFull(c.conn, buf)
	return buf, err
}

func hasSuffix(buf, delim []byte) bool {
	if len(delim) == 0 || len(buf) < len(delim) {
		return false
	}
	tail := buf[len(buf)-len(delim):]
	for i := range delim {
		if tail[i] != delim[i] {
			return false
		}
	}
	return true
}
