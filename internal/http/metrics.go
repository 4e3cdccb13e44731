package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccp",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ccp",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.resolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccp",
			Subsystem: "registry",
			Name:      "resolutions_total",
			Help:      "Binding set resolutions by environment",
		}, []string{"environment"})

		r.promotionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccp",
			Subsystem: "registry",
			Name:      "promotions_total",
			Help:      "Promotion attempts by target environment and outcome",
		}, []string{"environment", "outcome"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccp",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})

		collectors := []prometheus.Collector{r.requestTotal, r.requestLatency, r.resolveTotal, r.promotionTotal, r.rateLimitHits}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						switch collector {
						case r.requestTotal:
							r.requestTotal = v
						case r.resolveTotal:
							r.resolveTotal = v
						case r.promotionTotal:
							r.promotionTotal = v
						case r.rateLimitHits:
							r.rateLimitHits = v
						}
					case *prometheus.HistogramVec:
						r.requestLatency = v
					}
				}
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordResolve(environment string) {
	if !r.metricsInitialized {
		return
	}
	r.resolveTotal.With(prometheus.Labels{"environment": environment}).Inc()
}

func (r *Router) recordPromotion(environment string, err error) {
	if !r.metricsInitialized {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	r.promotionTotal.With(prometheus.Labels{"environment": environment, "outcome": outcome}).Inc()
}

func (r *Router) recordRateLimitHit(route, key string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
