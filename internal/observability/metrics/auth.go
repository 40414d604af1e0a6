package metrics

// Package metrics emits the service's StatsD metrics with consistent names and
// tags. A Recorder with a nil sink drops everything.

import (
	"strconv"

	obserrors "github.com/ragbox/ragbox/internal/observability/errors"
	"github.com/ragbox/ragbox/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Recorder emits authentication metrics. The zero value and a nil *Recorder
// are both valid no-ops.
type Recorder struct {
	sink statsd.Sink
}

// NewRecorder wraps sink. A nil sink yields a no-op recorder.
func NewRecorder(sink statsd.Sink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) count(name string, value int64, tags map[string]string) {
	if r == nil || r.sink == nil {
		return
	}
	r.sink.Count(name, value, tags)
}

// Login records a credential check. method is basic, oauth or token.
func (r *Recorder) Login(method, result string, err error) {
	tags := map[string]string{"method": method, "result": result}
	if err != nil && result != ResultSuccess {
		if class := obserrors.Classify(err); class != "" {
			tags["reason"] = class
		}
	}
	r.count("auth.login", 1, tags)
}

// GateRejected records a request turned away by the request gate.
func (r *Recorder) GateRejected(reason string) {
	r.count("auth.gate.rejected", 1, map[string]string{"reason": reason})
}

// RateLimited records a request rejected by the rate limiter.
func (r *Recorder) RateLimited() {
	r.count("auth.ratelimit.rejected", 1, nil)
}

// OIDCValidationFailed records an ID token that failed validation.
func (r *Recorder) OIDCValidationFailed(err error) {
	r.count("auth.oidc.validation_failed", 1, map[string]string{"reason": obserrors.Classify(err)})
}

// SweepEvicted records entries removed by a background sweeper.
func (r *Recorder) SweepEvicted(component string, n int) {
	if n <= 0 {
		return
	}
	r.count("auth.sweep.evicted", int64(n), map[string]string{
		"component": component,
		"bucket":    sizeBucket(n),
	})
}

func sizeBucket(n int) string {
	switch {
	case n < 10:
		return strconv.Itoa(n)
	case n < 100:
		return "10-99"
	default:
		return "100+"
	}
}
