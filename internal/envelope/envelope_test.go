package envelope

import (
	"reflect"
	"testing"

	"actorkit/internal/buffer"
)

func TestPayloadVariants(t *testing.T) {
	type testCase struct {
		name      string
		payload   Payload
		wantNone  bool
		wantBytes []byte
		wantInt   int64
		wantLen   int
	}

	testCases := []testCase{
		{name: "none", payload: None, wantNone: true},
		{name: "bytes", payload: BytesPayload([]byte("hi")), wantBytes: []byte("hi"), wantLen: 2},
		{name: "string", payload: StringPayload("ok"), wantBytes: []byte("ok"), wantLen: 2},
		{name: "integer", payload: IntegerPayload(42), wantInt: 42},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.payload.IsNone(); got != tc.wantNone {
				t.Fatalf("IsNone() = %v, want %v", got, tc.wantNone)
			}
			if b, ok := tc.payload.Bytes(); ok && !reflect.DeepEqual(b, tc.wantBytes) {
				t.Fatalf("Bytes() = %v, want %v", b, tc.wantBytes)
			}
			if n, ok := tc.payload.Integer(); ok && n != tc.wantInt {
				t.Fatalf("Integer() = %d, want %d", n, tc.wantInt)
			}
			if got := tc.payload.Len(); got != tc.wantLen {
				t.Fatalf("Len() = %d, want %d", got, tc.wantLen)
			}
		})
	}
}

func TestReply(t *testing.T) {
	req := New(TEXT, 10, 20, 99, StringPayload("ping"))
	resp := req.Reply(TEXT, StringPayload("pong"))

	if resp.From != 20 || resp.To != 10 {
		t.Fatalf("Reply() addresses = (from=%d to=%d), want (from=20 to=10)", resp.From, resp.To)
	}
	if resp.Session != req.Session {
		t.Fatalf("Reply() session = %d, want %d", resp.Session, req.Session)
	}
}

func TestReplyError(t *testing.T) {
	req := New(TEXT, 10, 20, 1, None)
	resp := req.ReplyError("boom")

	if resp.Ptype != ERROR {
		t.Fatalf("ReplyError() ptype = %s, want ERROR", resp.Ptype)
	}
	b, ok := resp.Payload.Bytes()
	if !ok || string(b) != "boom" {
		t.Fatalf("ReplyError() payload = %q, want %q", b, "boom")
	}
}

func TestDecode(t *testing.T) {
	env := New(TEXT, 1, 2, 3, StringPayload("abc"))

	got := env.Decode("TSREZN")
	want := []any{TEXT, int64(1), int64(2), int64(3), "abc", 3}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode(\"TSREZN\") = %#v, want %#v", got, want)
	}
}

func TestDecodeNonePayload(t *testing.T) {
	env := New(SYSTEM, 1, 2, 0, None)

	got := env.Decode("Z")
	if got[0] != nil {
		t.Fatalf("Decode(\"Z\") with None payload = %v, want nil", got[0])
	}
}

func TestDecodeBufferPointer(t *testing.T) {
	env := New(TEXT, 1, 2, 3, StringPayload("abc"))

	got := env.Decode("B")
	buf, ok := got[0].(*buffer.Buffer)
	if !ok {
		t.Fatalf("Decode(\"B\")[0] = %T, want *buffer.Buffer", got[0])
	}
	if string(buf.Bytes()) != "abc" {
		t.Fatalf("Decode(\"B\") buffer contents = %q, want %q", buf.Bytes(), "abc")
	}

	buf.Append([]byte("def"))
	if string(buf.Bytes()) != "abcdef" {
		t.Fatalf("buffer after Append() = %q, want %q", buf.Bytes(), "abcdef")
	}
}

func TestPtypeString(t *testing.T) {
	type testCase struct {
		ptype Ptype
		want  string
	}

	testCases := []testCase{
		{SYSTEM, "SYSTEM"},
		{QUIT, "QUIT"},
		{WEBSOCKET, "WEBSOCKET"},
		{Ptype(99), "PTYPE(99)"},
	}

	for _, tc := range testCases {
		if got := tc.ptype.String(); got != tc.want {
			t.Errorf("Ptype(%d).String() = %q, want %q", tc.ptype, got, tc.want)
		}
	}
}
