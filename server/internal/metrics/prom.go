package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for calls and pushes.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultLimited = "rate_limited"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "rtsync_build_info",
			Help:        "Build information for the rtsync coordinator",
			ConstLabels: prometheus.Labels{"component": "coordinator"},
		},
		[]string{"date", "sha", "version"},
	)

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtsync_connections",
			Help: "Number of open peer connections per group",
		},
		[]string{"group"},
	)

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtsync_calls_total",
			Help: "Remote calls handled, by result",
		},
		[]string{"result"},
	)

	callDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtsync_call_duration_seconds",
			Help:    "Time from call request to end of the response stream",
			Buckets: prometheus.DefBuckets,
		},
	)

	pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtsync_pushes_total",
			Help: "Pushed updates, by result",
		},
		[]string{"result"},
	)

	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtsync_decode_errors_total",
			Help: "Inbound frames that could not be decoded",
		},
	)

	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtsync_peer_evictions_total",
			Help: "Peers dropped for not keeping up, by reason",
		},
		[]string{"reason"},
	)
)

// Eviction reasons.
const (
	EvictPing    = "ping"
	EvictWrite   = "write"
	EvictStalled = "stalled"
)

// Register registers the coordinator collectors.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connections, callsTotal, callDuration, pushesTotal, decodeErrors, evictions)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

func ConnectionOpened(group string) { connections.WithLabelValues(group).Inc() }
func ConnectionClosed(group string) { connections.WithLabelValues(group).Dec() }

// RecordCall counts a finished call and observes its duration in seconds.
func RecordCall(result string, seconds float64) {
	callsTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		callDuration.Observe(seconds)
	}
}

func RecordPush(result string) { pushesTotal.WithLabelValues(result).Inc() }

func RecordDecodeError() { decodeErrors.Inc() }

func RecordEviction(reason string) { evictions.WithLabelValues(reason).Inc() }
