// Package progress measures upload throughput for the command-line uploader.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time snapshot of one upload.
type Stats struct {
	BytesDone int64
	Total     int64
	// Resumed counts bytes the server already had; they are part of
	// BytesDone but never affect the rate.
	Resumed   int64
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	StartedAt time.Time
}

// Meter tracks byte progress and computes an exponentially smoothed rate.
type Meter struct {
	mu        sync.Mutex
	total     int64
	done      int64
	resumed   int64
	startedAt time.Time
	lastAt    time.Time
	lastDone  int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter with the default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the meter for an upload of totalBytes.
func (m *Meter) Start(totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = totalBytes
	m.done = 0
	m.resumed = 0
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastDone = 0
	m.rateBps = 0
}

// Resume records the server's resume offset without affecting the rate.
func (m *Meter) Resume(offset int64) {
	if offset <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done += offset
	m.lastDone += offset
	m.resumed += offset
}

// Add increments the sent byte count.
func (m *Meter) Add(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.done += n
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime > 0 {
		inst := float64(m.done-m.lastDone) / deltaTime
		if m.rateBps == 0 {
			m.rateBps = inst
		} else {
			m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
		}
		m.lastAt = now
		m.lastDone = m.done
	}
}

// Set moves the meter to an absolute position, as reported by the client's
// progress callback.
func (m *Meter) Set(done int64) {
	m.mu.Lock()
	delta := done - m.done
	m.mu.Unlock()
	m.Add(delta)
}

// Snapshot returns current stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		BytesDone: m.done,
		Total:     m.total,
		Resumed:   m.resumed,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
	}
	if m.total > 0 {
		stats.Percent = float64(m.done) / float64(m.total) * 100
	}
	if m.rateBps > 0 && m.total > m.done {
		remaining := float64(m.total - m.done)
		stats.ETA = time.Duration(remaining / m.rateBps * float64(time.Second))
	}
	return stats
}

// Line renders stats as a single console line.
func Line(name string, s Stats) string {
	line := fmt.Sprintf("%s  %s / %s  %5.1f%%  %s/s",
		name,
		humanize.IBytes(uint64(max(s.BytesDone, 0))),
		humanize.IBytes(uint64(max(s.Total, 0))),
		s.Percent,
		humanize.IBytes(uint64(s.RateBps)))
	if s.Resumed > 0 {
		line += fmt.Sprintf("  (resumed at %s)", humanize.IBytes(uint64(s.Resumed)))
	}
	if s.ETA > 0 {
		line += fmt.Sprintf("  eta %s", s.ETA.Round(time.Second))
	}
	return line
}
