package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/failbank/internal/provider"
	"github.com/fyrsmithlabs/failbank/internal/store"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "failbank_resolutions_total",
		Help: "Resolutions by outcome: the match type on success, or rejected/error.",
	}, []string{"outcome"})

	resolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "failbank_resolution_duration_seconds",
		Help:    "End-to-end resolution latency, including provider and store calls.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	resolutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "failbank_resolution_errors_total",
		Help: "Resolution failures by error kind (validation, provider, store).",
	}, []string{"kind"})
)

// observeResolution records one resolution attempt.
func observeResolution(outcome string, d time.Duration, err error) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
	resolutionDuration.Observe(d.Seconds())
	if err != nil {
		resolutionErrors.WithLabelValues(errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, provider.ErrUnavailable):
		return "provider"
	case errors.Is(err, store.ErrDuplicateID), errors.Is(err, store.ErrDimensionMismatch):
		return "store"
	default:
		return "internal"
	}
}
