// Package envelope defines the wire-shaped message the core routes between
// actors: a protocol tag, sender/receiver addresses, a session for
// request/response correlation, and a small, owned payload.
package envelope

import (
	"fmt"

	"actorkit/internal/buffer"
)

// Ptype classifies how a payload should be interpreted and, for a handful of
// reserved values, how the runtime itself routes the envelope. Numeric
// values are stable for wire compatibility with script-side code.
type Ptype int8

const (
	SYSTEM      Ptype = 1
	TEXT        Ptype = 2
	LUA         Ptype = 3
	ERROR       Ptype = 4
	DEBUG       Ptype = 5
	SHUTDOWN    Ptype = 6
	TIMER       Ptype = 7
	SOCKET_TCP  Ptype = 8
	SOCKET_UDP  Ptype = 9
	INTEGER     Ptype = 12
	HTTP        Ptype = 13
	QUIT        Ptype = 14
	SQL         Ptype = 15
	MONGO       Ptype = 16
	WEBSOCKET   Ptype = 17
)

func (p Ptype) String() string {
	switch p {
	case SYSTEM:
		return "SYSTEM"
	case TEXT:
		return "TEXT"
	case LUA:
		return "LUA"
	case ERROR:
		return "ERROR"
	case DEBUG:
		return "DEBUG"
	case SHUTDOWN:
		return "SHUTDOWN"
	case TIMER:
		return "TIMER"
	case SOCKET_TCP:
		return "SOCKET_TCP"
	case SOCKET_UDP:
		return "SOCKET_UDP"
	case INTEGER:
		return "INTEGER"
	case HTTP:
		return "HTTP"
	case QUIT:
		return "QUIT"
	case SQL:
		return "SQL"
	case MONGO:
		return "MONGO"
	case WEBSOCKET:
		return "WEBSOCKET"
	default:
		return fmt.Sprintf("PTYPE(%d)", int8(p))
	}
}

// Payload is one of None, Bytes or Integer. Only one of the two fields below
// is meaningful at a time; IsNone distinguishes a zero Integer from "no
// payload" and a nil Bytes from an empty-but-present one.
type Payload struct {
	bytes   []byte
	integer int64
	kind    payloadKind
}

type payloadKind uint8

const (
	kindNone payloadKind = iota
	kindBytes
	kindInteger
)

// None is the empty payload.
var None = Payload{kind: kindNone}

// BytesPayload wraps an owned byte buffer. Ownership moves to the envelope;
// callers must not mutate buf after this call.
func BytesPayload(buf []byte) Payload { return Payload{kind: kindBytes, bytes: buf} }

// StringPayload is a convenience wrapper over BytesPayload.
func StringPayload(s string) Payload { return BytesPayload([]byte(s)) }

// IntegerPayload wraps a single int64.
func IntegerPayload(v int64) Payload { return Payload{kind: kindInteger, integer: v} }

func (p Payload) IsNone() bool { return p.kind == kindNone }

// Bytes returns the payload bytes and whether the payload was a Bytes variant.
func (p Payload) Bytes() ([]byte, bool) { return p.bytes, p.kind == kindBytes }

// Integer returns the payload integer and whether the payload was an Integer variant.
func (p Payload) Integer() (int64, bool) { return p.integer, p.kind == kindInteger }

// Len returns the payload's byte length, or 0 for None/Integer.
func (p Payload) Len() int {
	if p.kind == kindBytes {
		return len(p.bytes)
	}
	return 0
}

func (p Payload) String() string {
	switch p.kind {
	case kindBytes:
		return string(p.bytes)
	case kindInteger:
		return fmt.Sprintf("%d", p.integer)
	default:
		return "<nil>"
	}
}

// Envelope is the unit the registry and mailboxes move around. It is
// created by the sender and destroyed (garbage collected) on handler
// return; payload bytes are owned by exactly one envelope at a time.
type Envelope struct {
	Ptype   Ptype
	From    int64
	To      int64
	Session int64
	Payload Payload
}

func New(ptype Ptype, from, to, session int64, payload Payload) Envelope {
	return Envelope{Ptype: ptype, From: from, To: to, Session: session, Payload: payload}
}

// Reply builds the response envelope for this request: same session,
// addressed back to the original sender, carrying ptype and payload.
func (e Envelope) Reply(ptype Ptype, payload Payload) Envelope {
	return Envelope{Ptype: ptype, From: e.To, To: e.From, Session: e.Session, Payload: payload}
}

// ReplyError builds an ERROR reply carrying msg as a string payload. Callers
// should only send this when e.Session != 0 (see spec §4.3, §7).
func (e Envelope) ReplyError(msg string) Envelope {
	return e.Reply(ERROR, StringPayload(msg))
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{ptype=%s from=%d to=%d session=%d payload=%s}",
		e.Ptype, e.From, e.To, e.Session, e.Payload)
}

// Decode implements the script-visible decode helper described in spec §6:
// a format-character string selects which fields to extract, in order.
//   T -> ptype, S -> from, R -> to, E -> session,
//   Z -> payload bytes as string (or nil), N -> payload length,
//   B -> mutable buffer.Buffer wrapping the payload bytes,
//   C -> raw byte slice followed by its length.
func (e Envelope) Decode(format string) []any {
	out := make([]any, 0, len(format))
	for _, f := range format {
		switch f {
		case 'T':
			out = append(out, e.Ptype)
		case 'S':
			out = append(out, e.From)
		case 'R':
			out = append(out, e.To)
		case 'E':
			out = append(out, e.Session)
		case 'Z':
			if b, ok := e.Payload.Bytes(); ok {
				out = append(out, string(b))
			} else {
				out = append(out, nil)
			}
		case 'N':
			out = append(out, e.Payload.Len())
		case 'B':
			b, _ := e.Payload.Bytes()
			out = append(out, buffer.FromBytes(b))
		case 'C':
			b, _ := e.Payload.Bytes()
			out = append(out, b, len(b))
		default:
			out = append(out, nil)
		}
	}
	return out
}
