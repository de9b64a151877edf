package termio

import (
	"io"
	"os"
	"sync"
)

// Writer hands writes to a single background goroutine so that callers
// (worker goroutines emitting log lines) never block on a slow console.
type Writer struct {
	out  io.Writer
	ch   chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a Writer forwarding to out. depth bounds the number of
// pending writes before Write starts to wait for the console.
func NewWriter(out io.Writer, depth int) *Writer {
	if depth < 1 {
		depth = 1
	}
	w := &Writer{
		out:  out,
		ch:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for buf := range w.ch {
			_, _ = w.out.Write(buf)
		}
	}()
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.out.Write(p)
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- buf
	return len(p), nil
}

// Close flushes pending writes and stops the background goroutine. Writes
// after Close go straight to the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()
	<-w.done
	return nil
}

type manager struct {
	once   sync.Once
	stdout *Writer
	stderr *Writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = NewWriter(os.Stdout, 1024)
		global.stderr = NewWriter(os.Stderr, 1024)
	})
}

func Stdout() io.Writer {
	Init()
	return global.stdout
}

func Stderr() io.Writer {
	Init()
	return global.stderr
}

// Flush drains both console writers. Call it once before the process exits.
func Flush() {
	Init()
	_ = global.stdout.Close()
	_ = global.stderr.Close()
}
