// Package metrics holds the Prometheus collectors shared across the
// aggregator's components. Rather than registering package-level
// collectors once via a global prometheus.MustRegister in an implicit init
// path, Metrics is a plain constructor over a caller-supplied registry: a
// long-running server or a test can construct more than one independent
// pipeline without colliding on global collector names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge/histogram the aggregator's statistics
// surface reports (spec §4.2/§4.6/§4.8 "Statistics exposed" lists).
type Metrics struct {
	FetchTotal          prometheus.Counter
	FetchSuccessTotal   prometheus.Counter
	FetchFailedTotal    prometheus.Counter
	CircuitBreakerTrips prometheus.Counter
	RateLimitHits       prometheus.Counter
	RetryAttempts       prometheus.Counter
	ActiveConnections   prometheus.Gauge

	SourcesValidated prometheus.Counter
	ConfigsProcessed prometheus.Counter
	ConfigsRejected  prometheus.Counter

	EventsPublished    prometheus.Counter
	EventHandlerErrors prometheus.Counter
	EventsDropped      prometheus.Counter
	EventsSampledOut   prometheus.Counter

	JobsStarted        prometheus.Counter
	JobsCompleted      prometheus.Counter
	JobsCancelled      prometheus.Counter
	PersistenceErrors  prometheus.Counter
}

// New constructs a Metrics bundle and registers every collector against reg.
// Pass prometheus.NewRegistry() in tests to avoid collisions with other
// instances; pass the default registry in production via
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_fetch_requests_total",
			Help: "Total fetch attempts across all hosts.",
		}),
		FetchSuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_fetch_success_total",
			Help: "Fetch attempts that returned a 2xx response.",
		}),
		FetchFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_fetch_failed_total",
			Help: "Fetch attempts exhausted without success.",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_circuit_breaker_trips_total",
			Help: "Calls short-circuited by an open breaker.",
		}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_rate_limit_hits_total",
			Help: "Times a rate limiter delayed a fetch.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_retry_attempts_total",
			Help: "Retry attempts issued by the Fetcher.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpnagg_active_connections",
			Help: "In-flight fetch operations.",
		}),
		SourcesValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_sources_validated_total",
			Help: "Sources validated by SourceValidator.",
		}),
		ConfigsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_configs_processed_total",
			Help: "Configuration lines accepted by ConfigurationProcessor.",
		}),
		ConfigsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_configs_rejected_total",
			Help: "Configuration lines rejected by ConfigurationProcessor.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_events_published_total",
			Help: "Events published to the EventBus.",
		}),
		EventHandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_event_handler_errors_total",
			Help: "Errors returned by an EventBus subscriber.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_events_dropped_total",
			Help: "Events dropped because a listener's channel was full.",
		}),
		EventsSampledOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_events_sampled_out_total",
			Help: "Events skipped from persistence by random sampling.",
		}),
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_jobs_started_total",
			Help: "Merge jobs started.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_jobs_completed_total",
			Help: "Merge jobs that reached status completed.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_jobs_cancelled_total",
			Help: "Merge jobs that reached status cancelled.",
		}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpnagg_persistence_errors_total",
			Help: "EventStore/JobStore save failures.",
		}),
	}

	reg.MustRegister(
		m.FetchTotal, m.FetchSuccessTotal, m.FetchFailedTotal,
		m.CircuitBreakerTrips, m.RateLimitHits, m.RetryAttempts, m.ActiveConnections,
		m.SourcesValidated, m.ConfigsProcessed, m.ConfigsRejected,
		m.EventsPublished, m.EventHandlerErrors, m.EventsDropped, m.EventsSampledOut,
		m.JobsStarted, m.JobsCompleted, m.JobsCancelled, m.PersistenceErrors,
	)
	return m
}
