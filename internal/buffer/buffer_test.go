package buffer

import (
	"bytes"
	"testing"
)

func TestAppendAndBytes(t *testing.T) {
	b := New(8)
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))

	if got := b.Bytes(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("Bytes() = %q, want %q", got, "hello world")
	}
	if got := b.Len(); got != len("hello world") {
		t.Fatalf("Len() = %d, want %d", got, len("hello world"))
	}
}

func TestPrepend(t *testing.T) {
	b := New(8)
	b.Append([]byte("payload"))
	b.Prepend([]byte("HDR:"))

	if got := b.Bytes(); !bytes.Equal(got, []byte("HDR:payload")) {
		t.Fatalf("Bytes() = %q, want %q", got, "HDR:payload")
	}
}

func TestPrependPanicsWithoutHeadroom(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Prepend() did not panic when head room was exhausted")
		}
	}()

	b := NewWithPrefix(8, 2)
	b.Prepend([]byte("abc"))
}

func TestFromBytes(t *testing.T) {
	b := FromBytes([]byte("raw"))
	if got := b.Bytes(); !bytes.Equal(got, []byte("raw")) {
		t.Fatalf("Bytes() = %q, want %q", got, "raw")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Prepend() on a zero-prefix buffer should panic")
		}
	}()
	b.Prepend([]byte("x"))
}

func TestReset(t *testing.T) {
	b := New(8)
	b.Append([]byte("data"))
	b.Reset(DefaultPrefix)

	if got := b.Len(); got != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", got)
	}
	b.Prepend([]byte("again"))
	if got := b.Bytes(); !bytes.Equal(got, []byte("again")) {
		t.Fatalf("Bytes() after Reset+Prepend = %q, want %q", got, "again")
	}
}

func TestGrowAvoidsReallocWhenCapacitySuffices(t *testing.T) {
	b := New(16)
	before := b.buf
	b.Grow(4)
	if &b.buf[0] != &before[0] {
		t.Fatal("Grow() reallocated even though capacity already covered the request")
	}
}
