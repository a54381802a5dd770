// Package logring provides the bounded operator log ring shared by the
// supervisor and the agents, with live fan-out to stream subscribers.
package logring

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Line is a single timestamped operator log line.
type Line struct {
	TS      string `json:"ts"`
	Message string `json:"message"`
}

// Ring is a bounded append-only log with live subscribers. Appends never
// block: a subscriber whose buffer is full simply misses the line.
type Ring struct {
	mu       sync.Mutex
	capacity int
	lines    []Line
	subs     map[string]chan Line
	subBuf   int
	now      func() time.Time
}

// New creates a ring holding at most capacity lines.
func New(capacity int) *Ring {
	return &Ring{
		capacity: capacity,
		subs:     make(map[string]chan Line),
		subBuf:   64,
		now:      time.Now,
	}
}

// Appendf formats and appends a log line, fanning it out to subscribers.
func (r *Ring) Appendf(format string, args ...any) Line {
	return r.Append(fmt.Sprintf(format, args...))
}

// Append records a line with the current timestamp.
func (r *Ring) Append(message string) Line {
	r.mu.Lock()
	line := Line{
		TS:      r.now().UTC().Format(time.RFC3339),
		Message: message,
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > r.capacity {
		r.lines = r.lines[len(r.lines)-r.capacity:]
	}
	for _, ch := range r.subs {
		select {
		case ch <- line:
		default:
			// Slow subscriber: drop the line for this subscriber only.
		}
	}
	r.mu.Unlock()
	return line
}

// Lines returns a copy of the buffered lines.
func (r *Ring) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Len returns the number of buffered lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Subscribe registers a live consumer and returns the buffered lines as of
// registration. The snapshot and the channel never overlap: a line is either
// in the snapshot or delivered on the channel, not both. The returned cancel
// function must be called when the consumer goes away.
func (r *Ring) Subscribe() ([]Line, <-chan Line, func()) {
	id := uuid.New().String()
	ch := make(chan Line, r.subBuf)
	r.mu.Lock()
	replay := make([]Line, len(r.lines))
	copy(replay, r.lines)
	r.subs[id] = ch
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
	return replay, ch, cancel
}

// SetNow overrides the clock; used by tests.
func (r *Ring) SetNow(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}
