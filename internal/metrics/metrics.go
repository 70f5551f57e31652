// Package metrics defines the minimal metrics surface the checker depends on.
//
// The core code depends only on Backend; concrete backends (Datadog) live in
// subpackages so their SDKs never leak into the engine.
package metrics

// Labels carries low-cardinality metric dimensions (status, table, ...).
type Labels map[string]string

// Backend receives counters and histogram samples from a run.
//
// Implementations must be safe for concurrent use: detection workers emit
// from multiple goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Close flushes any buffered data. Call once at process shutdown.
	Close() error
}

// Noop discards everything. It is the default when no backend is configured,
// so callers never need a nil check.
type Noop struct{}

func (Noop) IncCounter(string, float64, Labels)       {}
func (Noop) ObserveHistogram(string, float64, Labels) {}
func (Noop) Close() error                             { return nil }

var _ Backend = Noop{}
