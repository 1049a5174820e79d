// Package logstream provides the ops, diag and trace log streams each
// package writes to.
package logstream

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// Streams is a set of three prefixed loggers. The zero value logs nothing.
type Streams struct {
	prefix string

	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// New returns streams that prefix every line with prefix. All streams start
// disabled.
func New(prefix string) *Streams {
	return &Streams{prefix: prefix}
}

// Set configures all three streams at once. A nil writer disables its stream.
func (s *Streams) Set(w LogWriters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = s.newLogger(w.Ops)
	s.diag = s.newLogger(w.Diag)
	s.trace = s.newLogger(w.Trace)
}

func (s *Streams) newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, s.prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream (actionable warnings and errors).
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.ops
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.diag
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.trace
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
