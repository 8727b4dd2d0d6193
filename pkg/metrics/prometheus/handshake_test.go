package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandshakeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHandshakeMetrics(reg)

	m.HandshakeStarted()
	m.HandshakeStarted()
	m.ChallengeIssued()
	m.HandshakeCompleted()
	m.HandshakeRejected("validation")
	m.HandshakeRejected("validation")
	m.HandshakeRejected("no_context")
	m.CacheEntries(7)

	impl := m.(*handshakeMetrics)
	assert.Equal(t, float64(2), testutil.ToFloat64(impl.started))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.challenges))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.completed))
	assert.Equal(t, float64(2), testutil.ToFloat64(impl.rejected.WithLabelValues("validation")))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.rejected.WithLabelValues("no_context")))
	assert.Equal(t, float64(7), testutil.ToFloat64(impl.cacheEntries))
}
