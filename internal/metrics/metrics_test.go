package metrics

import (
	"testing"
	"time"
)

type captureBackend struct {
	counters  map[string]float64
	durations map[string][]time.Duration
}

func newCaptureBackend() *captureBackend {
	return &captureBackend{
		counters:  map[string]float64{},
		durations: map[string][]time.Duration{},
	}
}

func (c *captureBackend) IncCounter(name string, delta float64, tags ...string) {
	c.counters[name] += delta
}

func (c *captureBackend) ObserveDuration(name string, d time.Duration, tags ...string) {
	c.durations[name] = append(c.durations[name], d)
}

func (c *captureBackend) Flush() error { return nil }

func TestDefaultBackendIsNop(t *testing.T) {
	SetBackend(nil)

	// Must not panic and must not block.
	IncCounter("x", 1)
	ObserveDuration("y", time.Second)
	if err := Flush(); err != nil {
		t.Errorf("Flush = %v", err)
	}
}

func TestSetBackendRoutes(t *testing.T) {
	b := newCaptureBackend()
	SetBackend(b)
	defer SetBackend(nil)

	IncCounter("rows", 5)
	IncCounter("rows", 2)
	ObserveDuration("load", 3*time.Second)

	if b.counters["rows"] != 7 {
		t.Errorf("rows = %v, want 7", b.counters["rows"])
	}
	if len(b.durations["load"]) != 1 || b.durations["load"][0] != 3*time.Second {
		t.Errorf("load = %v", b.durations["load"])
	}
}
