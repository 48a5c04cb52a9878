package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type FulfillmentMetrics struct {
	Checkouts            *prometheus.CounterVec
	CheckoutDuration     *prometheus.HistogramVec
	Cancellations        *prometheus.CounterVec
	CompensationFailures *prometheus.CounterVec
}

func NewFulfillmentMetrics() *FulfillmentMetrics {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "checkouts_total",
		Help:      "Total checkout attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fulfillment",
		Name:      "checkout_duration_seconds",
		Help:      "Checkout latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"outcome"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "cancellations_total",
		Help:      "Total cancellation attempts by outcome.",
	}, []string{"outcome"})
	compensation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "compensation_step_failures_total",
		Help:      "Compensation sub-steps that failed and need operator retry.",
	}, []string{"step"})

	prometheus.MustRegister(checkouts, duration, cancellations, compensation)
	return &FulfillmentMetrics{
		Checkouts:            checkouts,
		CheckoutDuration:     duration,
		Cancellations:        cancellations,
		CompensationFailures: compensation,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
