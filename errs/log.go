package errs

import (
	"fmt"
	"strings"
	"sync"
)

const (
	// maxEntries bounds the log, mirroring the 64-entry cap the
	// spec gives the thread-local diagnostic channel.
	maxEntries = 64

	// maxMessageBytes caps a single entry's formatted message.
	maxMessageBytes = 2048
)

// Record is one frame pushed onto a Log.
type Record struct {
	Err     error
	Message string
}

// Log is a bounded history of errors, standing in for a thread-local
// diagnostic channel. Go has no native thread-local storage, so a Log
// is owned by a single Pager instead of a single OS thread. It is safe
// for concurrent use.
type Log struct {
	mu         sync.Mutex
	records    []Record
	overflowed bool
}

// NewLog returns an empty diagnostic log.
func NewLog() *Log {
	return &Log{records: make([]Record, 0, maxEntries)}
}

// Push records err with a formatted message, truncating the message if
// it exceeds the per-entry cap. If the log is already at capacity the
// new entry is dropped silently and Overflowed becomes true.
func (l *Log) Push(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) >= maxEntries {
		l.overflowed = true
		return
	}
	l.records = append(l.records, Record{Err: err, Message: msg})
}

// Mark re-pushes a "..." frame at the caller's location, reusing the
// last recorded error. It is a no-op on an empty log.
func (l *Log) Mark(where string) {
	l.mu.Lock()
	last := len(l.records) - 1
	if last < 0 {
		l.mu.Unlock()
		return
	}
	err := l.records[last].Err
	l.mu.Unlock()

	l.Push(err, "... at %s", where)
}

// Records returns a copy of all entries currently held, oldest first.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Overflowed reports whether any entry was dropped because the log was
// full.
func (l *Log) Overflowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overflowed
}

// Clear discards all entries and resets the overflow flag.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0]
	l.overflowed = false
}

// PrintAll renders every entry, oldest first, one per line.
func (l *Log) PrintAll() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, r := range l.records {
		fmt.Fprintf(&b, "%v: %s\n", r.Err, r.Message)
	}
	if l.overflowed {
		b.WriteString("... (log overflowed, entries dropped)\n")
	}
	return b.String()
}
