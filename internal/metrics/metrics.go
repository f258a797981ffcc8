// Package metrics is a tiny facade over an optional metrics backend.
//
// The default backend is a no-op, so library code can emit metrics
// unconditionally and binaries opt in by calling SetBackend at startup.
package metrics

import (
	"sync"
	"time"
)

// Backend receives metric samples. Implementations must be safe for
// concurrent use.
type Backend interface {
	// IncCounter adds delta to a named counter.
	IncCounter(name string, delta float64, tags ...string)

	// ObserveDuration records one elapsed-time sample.
	ObserveDuration(name string, d time.Duration, tags ...string)

	// Flush pushes any buffered samples to the remote sink.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, ...string)            {}
func (nopBackend) ObserveDuration(string, time.Duration, ...string) {}
func (nopBackend) Flush() error                                     { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Passing nil restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, tags ...string) {
	current().IncCounter(name, delta, tags...)
}

// ObserveDuration records one elapsed-time sample on the installed backend.
func ObserveDuration(name string, d time.Duration, tags ...string) {
	current().ObserveDuration(name, d, tags...)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}
