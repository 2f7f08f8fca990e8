package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.VotesProcessed.WithLabelValues(ResultApplied).Inc()
	m.VotesProcessed.WithLabelValues(ResultInvalidScore).Inc()
	m.VotesProcessed.WithLabelValues(ResultApplied).Inc()
	m.PostsTracked.Inc()
	m.MessengerRequests.WithLabelValues("sendMessage", "success").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VotesProcessed.WithLabelValues(ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesProcessed.WithLabelValues(ResultInvalidScore)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsTracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessengerRequests.WithLabelValues("sendMessage", "success")))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
