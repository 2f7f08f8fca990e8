// Package metrics defines the Prometheus instrumentation for the vote
// pipeline and the outbound messenger.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "postpulse"

// Metrics holds all registered collectors.
type Metrics struct {
	VotesProcessed     *prometheus.CounterVec
	VoteScores         prometheus.Histogram
	ProcessingDuration prometheus.Histogram
	MessengerRequests  *prometheus.CounterVec
	PostsTracked       prometheus.Counter
}

// New creates and registers all metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of votes processed, by result.",
		}, []string{"result"}),
		VoteScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_scores",
			Help:      "Distribution of applied vote scores.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_processing_duration_seconds",
			Help:      "Duration of vote processing in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MessengerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messenger_requests_total",
			Help:      "Total number of outbound messenger API calls, by method and outcome.",
		}, []string{"method", "outcome"}),
		PostsTracked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_tracked_total",
			Help:      "Total number of channel posts that received a rating message.",
		}),
	}

	reg.MustRegister(m.VotesProcessed, m.VoteScores, m.ProcessingDuration, m.MessengerRequests, m.PostsTracked)
	return m
}

// Vote result labels.
const (
	ResultApplied      = "applied"
	ResultInvalidScore = "invalid_score"
	ResultUnknownPost  = "unknown_post"
	ResultError        = "error"
)
