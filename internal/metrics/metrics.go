// Package metrics provides a small instrumentation interface with a no-op default
// and a Prometheus-backed implementation.
package metrics

import "time"

// Operation names recorded through ObserveOp.
const (
	OpEmbed       = "embed"
	OpVectorQuery = "vector_query"
	OpAsk         = "ask"
	OpRefresh     = "refresh"
	OpImport      = "import"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	ObserveOp(op string, success bool, seconds float64)
	AddEmbeddingOutcomes(embedded, skipped, failed int)
	IncFallbackAnswers()
	ObserveHTTP(method, route string, status int, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOp(string, bool, float64)          {}
func (nopRecorder) AddEmbeddingOutcomes(int, int, int)       {}
func (nopRecorder) IncFallbackAnswers()                      {}
func (nopRecorder) ObserveHTTP(string, string, int, float64) {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder {
	return nopRecorder{}
}

// OrNop returns r, or a no-op Recorder if r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}

// TimeOp starts timing op and returns a func that records it.
func TimeOp(r Recorder, op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		r.ObserveOp(op, success, time.Since(start).Seconds())
	}
}
