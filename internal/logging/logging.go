// Package logging provides the ops and diag log streams used across
// annoview, plus a keyed print-once channel for diagnostics that would
// otherwise flood output during interactive panning.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// Writers holds the io.Writers for each logging stream.
type Writers struct {
	Ops  io.Writer
	Diag io.Writer
}

var (
	mu         sync.RWMutex
	opsLogger  = newLogger(os.Stderr)
	diagLogger *log.Logger
)

// SetWriters configures both streams at once.
// Pass nil for any writer to disable that stream.
func SetWriters(w Writers) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[annoview] ", log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs actionable warnings and errors.
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs day-to-day diagnostics.
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Once prints a message the first time a key is seen and suppresses every
// later message for the same key. It is safe for concurrent use.
type Once struct {
	seen sync.Map
	logf func(format string, args ...interface{})
}

// NewOnce returns a print-once channel writing to the ops stream.
func NewOnce() *Once {
	return &Once{logf: Opsf}
}

// NewOnceFunc returns a print-once channel writing through logf.
func NewOnceFunc(logf func(format string, args ...interface{})) *Once {
	return &Once{logf: logf}
}

// Printf logs the message if key has not been reported before and returns
// true when it did.
func (o *Once) Printf(key string, format string, args ...interface{}) bool {
	if _, loaded := o.seen.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	o.logf(format, args...)
	return true
}

// Seen reports whether key has already been reported.
func (o *Once) Seen(key string) bool {
	_, ok := o.seen.Load(key)
	return ok
}
