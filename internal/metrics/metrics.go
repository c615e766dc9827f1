package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts remote API calls, labeled by operation and result code.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeamps_api_requests_total",
		Help: "Total number of requests sent to the Charge Amps API.",
	}, []string{"operation", "code"})

	// APIRequestDuration observes remote API latency, labeled by operation.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chargeamps_api_request_duration_seconds",
		Help:    "Histogram of Charge Amps API request durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TokenExchanges counts login and refresh-token exchanges, labeled by kind and result.
	TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeamps_token_exchanges_total",
		Help: "Total number of authentication exchanges (login or refresh).",
	}, []string{"kind", "result"})

	// Refreshes counts chargepoint data refreshes, labeled by result (ok, throttled, or an api.ErrorKind).
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeamps_refreshes_total",
		Help: "Total number of chargepoint data refresh attempts.",
	}, []string{"result"})

	// RefreshDuration observes the duration of a full refresh sequence.
	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chargeamps_refresh_duration_seconds",
		Help:    "Histogram of chargepoint refresh sequence durations.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"forced"})

	// CommandsProcessed counts host commands, labeled by command name and result
	// (executed, rejected, dropped, or an api.ErrorKind when execution failed).
	CommandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeamps_commands_total",
		Help: "Total number of host commands handled by the dispatcher.",
	}, []string{"command", "result"})

	// EventsPublished counts state events handed to the message broker, labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeamps_events_published_total",
		Help: "Total number of state events published to the message broker.",
	}, []string{"event_type"})

	// TotalEnergy exposes the cached cumulative energy per chargepoint.
	TotalEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeamps_total_energy_kwh",
		Help: "Cumulative energy of all charging sessions per chargepoint.",
	}, []string{"charge_point_id"})

	// LastRefresh exposes the unix time of the last refresh that passed the throttle.
	LastRefresh = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeamps_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful data refresh per chargepoint.",
	}, []string{"charge_point_id"})

	// CacheEntries exposes the number of cached records, labeled by record kind.
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeamps_cache_entries",
		Help: "Number of records held in the state cache.",
	}, []string{"kind"})
)
