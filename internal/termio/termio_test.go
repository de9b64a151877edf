package termio

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterPreservesOrderAfterClose(t *testing.T) {
	out := &lockedBuffer{}
	w := NewWriter(out, 4)

	var want bytes.Buffer
	for i := 0; i < 100; i++ {
		line := fmt.Sprintf("line %d\n", i)
		want.WriteString(line)
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out.String() != want.String() {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestWriterCopiesCallerBuffer(t *testing.T) {
	out := &lockedBuffer{}
	w := NewWriter(out, 8)

	p := []byte("abc")
	if _, err := w.Write(p); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p[0] = 'x'
	_ = w.Close()

	if out.String() != "abc" {
		t.Fatalf("expected abc, got %q", out.String())
	}
}

func TestWriteAfterCloseGoesDirect(t *testing.T) {
	out := &lockedBuffer{}
	w := NewWriter(out, 1)
	_ = w.Close()
	_ = w.Close()

	if _, err := w.Write([]byte("late")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != "late" {
		t.Fatalf("expected late, got %q", out.String())
	}
}
