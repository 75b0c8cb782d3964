// Package audit keeps a bounded, append-only trail of what the console saw
// and did. It is for the operator's eyes only; nothing reads it back.
package audit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultSize is the number of entries kept when none is configured.
const DefaultSize = 500

// Kind tags an entry's origin.
type Kind string

const (
	Event  Kind = "evt"  // a notification changed the call state
	Action Kind = "act"  // an operator action was accepted
	Error  Kind = "err"  // an action or the connection failed
	Conn   Kind = "conn" // session lifecycle
)

// Entry is a single audit line.
type Entry struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

// Log is safe for concurrent use: action commands append from their own
// goroutines while the UI loop reads.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	total   uint64
	now     func() time.Time
}

// New creates a log holding at most size entries. A non-positive size uses
// DefaultSize.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{max: size, now: time.Now}
}

// Add appends an entry, evicting the oldest when full.
func (l *Log) Add(kind Kind, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Time: l.now(), Kind: kind, Message: message})
	if len(l.entries) > l.max {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.max:]...)
	}
	l.total++
}

func (l *Log) Addf(kind Kind, format string, args ...any) {
	l.Add(kind, fmt.Sprintf(format, args...))
}

// Entries returns a copy, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Total counts every entry ever added, evicted ones included.
func (l *Log) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
