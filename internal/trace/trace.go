// Package trace provides types for syscall trace collection and rendering.
package trace

import (
	"time"

	"github.com/google/uuid"
)

// Event represents one intercepted syscall invocation.
type Event struct {
	Seq       uint64    // Sequence number within the session
	Num       int64     // Syscall number
	Name      string    // Resolved syscall name
	Args      [8]int64  // Arguments as seen by the real syscall (post pre-pass)
	Ret       int64     // Final return value (after the post-pass)
	PreFired  bool      // A pre-hook fired for this call
	PostFired bool      // A post-hook fired for this call
	Skipped   bool      // The real syscall was suppressed
	Timestamp time.Time // When the syscall was dispatched
}

// Session collects the events of one emulation run. It is written from the
// dispatch path, which is single-threaded, so it carries no locking.
type Session struct {
	ID      string // Unique run identifier
	Started time.Time
	events  []Event
	seq     uint64
}

// NewSession creates an empty session with a fresh run ID.
func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}
}

// Add appends an event, assigning its sequence number.
func (s *Session) Add(e Event) {
	s.seq++
	e.Seq = s.seq
	e.Timestamp = time.Now()
	s.events = append(s.events, e)
}

// Events returns a copy of the collected events.
func (s *Session) Events() []Event {
	return append([]Event{}, s.events...)
}

// Len returns the number of collected events.
func (s *Session) Len() int { return len(s.events) }

// Stats summarizes a session for end-of-run reporting.
type Stats struct {
	Total   int
	Hooked  int
	Skipped int
}

// Stats computes summary counters over the session.
func (s *Session) Stats() Stats {
	st := Stats{Total: len(s.events)}
	for _, e := range s.events {
		if e.PreFired || e.PostFired {
			st.Hooked++
		}
		if e.Skipped {
			st.Skipped++
		}
	}
	return st
}
