package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
)

type countCall struct {
	name  string
	value int64
	tags  map[string]string
}

type fakeSink struct {
	mu     sync.Mutex
	counts []countCall
}

func (f *fakeSink) Count(name string, value int64, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, countCall{name: name, value: value, tags: tags})
}

func (f *fakeSink) Gauge(string, float64, map[string]string)        {}
func (f *fakeSink) Timing(string, time.Duration, map[string]string) {}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Login("basic", ResultSuccess, nil)
		r.GateRejected("missing_credentials")
		r.RateLimited()
		r.OIDCValidationFailed(domainauth.ErrTokenExpired)
		r.SweepEvicted("ratelimit", 3)
	})
	assert.NotPanics(t, func() { NewRecorder(nil).RateLimited() })
}

func TestRecorder_LoginTagsReason(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink)

	r.Login("oauth", ResultFailure, domainauth.ErrInvalidIssuer)
	r.Login("basic", ResultSuccess, nil)

	require.Len(t, sink.counts, 2)
	assert.Equal(t, "auth.login", sink.counts[0].name)
	assert.Equal(t, "invalid_issuer", sink.counts[0].tags["reason"])
	assert.Equal(t, "oauth", sink.counts[0].tags["method"])
	_, hasReason := sink.counts[1].tags["reason"]
	assert.False(t, hasReason)
}

func TestRecorder_OIDCValidationFailed(t *testing.T) {
	sink := &fakeSink{}
	NewRecorder(sink).OIDCValidationFailed(errors.Join(domainauth.ErrKeySetUnavailable))

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "auth.oidc.validation_failed", sink.counts[0].name)
	assert.Equal(t, "provider_unavailable", sink.counts[0].tags["reason"])
}

func TestRecorder_SweepEvicted(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink)

	r.SweepEvicted("registry", 0)
	r.SweepEvicted("registry", 150)

	require.Len(t, sink.counts, 1)
	assert.Equal(t, int64(150), sink.counts[0].value)
	assert.Equal(t, "100+", sink.counts[0].tags["bucket"])
}
