// Package observe carries what happens on upload connections to whoever is
// interested: the log, the metrics registry and live websocket watchers.
// Protocol code never logs directly; it emits Events into a Sink.
package observe

import (
	"sync"
	"time"
)

// Kind names an event.
type Kind string

const (
	ConnectionAccepted Kind = "connection_accepted"
	ConnectionRejected Kind = "connection_rejected"
	ConnectionStarted  Kind = "connection_started"
	ConnectionClosed   Kind = "connection_closed"
	RequestReceived    Kind = "request_received"
	ResumeOffered      Kind = "resume_offered"
	TransferSkipped    Kind = "transfer_skipped"
	TransferReceived   Kind = "transfer_received"
	ChecksumVerified   Kind = "checksum_verified"
	ChecksumMismatch   Kind = "checksum_mismatch"
)

// Event is a single observation. Fields that do not apply to a kind are left
// zero.
type Event struct {
	Kind   Kind      `json:"kind"`
	Time   time.Time `json:"time"`
	ConnID string    `json:"conn_id,omitempty"`
	Remote string    `json:"remote,omitempty"`

	Filename         string `json:"filename,omitempty"`
	DeclaredSize     int64  `json:"declared_size,omitempty"`
	DeclaredChecksum uint32 `json:"declared_checksum,omitempty"`

	// Offset is the resume point sent to the client.
	Offset int64 `json:"offset,omitempty"`
	// Length is the on-disk length of an artifact larger than the declared
	// size (transfer_skipped).
	Length int64 `json:"length,omitempty"`
	// Bytes counts data bytes appended during this transfer. On
	// connection_closed it holds the bytes of an interrupted data phase.
	Bytes int64 `json:"bytes,omitempty"`

	Computed uint32 `json:"computed,omitempty"`
	Digest   string `json:"digest,omitempty"`

	// Cause names the termination reason on connection_closed.
	Cause    string `json:"cause,omitempty"`
	Expected bool   `json:"expected,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Sink receives events. Emit must not block for long: it runs on the worker
// serving the connection.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

type multi []Sink

// Multi fans every event out to each non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Discard drops everything.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps every event it receives. Tests use it to assert on what a
// connection did.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Filter returns recorded events of kind k.
func (r *Recorder) Filter(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until at least n events of kind k were recorded or the
// timeout expires, and reports which happened first.
func (r *Recorder) WaitFor(k Kind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if len(r.Filter(k)) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return len(r.Filter(k)) >= n
		}
	}
}
