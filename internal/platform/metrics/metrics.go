package metrics

import (
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace         = "guildhall"
	ElectionSubsystem = "election"
	HTTPSubsystem     = "http"
)

// ElectionMetrics implements the election-service metrics port.
type ElectionMetrics struct {
	BallotsTotal         metrics.Counter
	TransitionsTotal     metrics.Counter
	TallyDurationSeconds metrics.Histogram
}

// PromElectionMetrics registers with the default Prometheus registry, so it
// must be called once per process.
func PromElectionMetrics() *ElectionMetrics {
	return &ElectionMetrics{
		BallotsTotal: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: ElectionSubsystem,
			Name:      "ballots_total",
			Help:      "Ballot submissions by outcome.",
		}, []string{"outcome"}),
		TransitionsTotal: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: ElectionSubsystem,
			Name:      "transitions_total",
			Help:      "Applied election lifecycle transitions.",
		}, []string{"from", "to"}),
		TallyDurationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: ElectionSubsystem,
			Name:      "tally_duration_seconds",
			Help:      "Time spent computing election results from the ledger.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{"provisional"}),
	}
}

func NopElectionMetrics() *ElectionMetrics {
	return &ElectionMetrics{
		BallotsTotal:         discard.NewCounter(),
		TransitionsTotal:     discard.NewCounter(),
		TallyDurationSeconds: discard.NewHistogram(),
	}
}

func (m *ElectionMetrics) ObserveBallot(outcome string) {
	m.BallotsTotal.With("outcome", outcome).Add(1)
}

func (m *ElectionMetrics) ObserveTransition(from string, to string) {
	m.TransitionsTotal.With("from", from, "to", to).Add(1)
}

func (m *ElectionMetrics) ObserveTally(duration time.Duration, provisional bool) {
	m.TallyDurationSeconds.With("provisional", strconv.FormatBool(provisional)).Observe(duration.Seconds())
}

type HTTPMetrics struct {
	RequestsTotal          metrics.Counter
	RequestDurationSeconds metrics.Histogram
}

func PromHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: HTTPSubsystem,
			Name:      "requests_total",
			Help:      "Total number of requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSeconds: prometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: Namespace,
			Subsystem: HTTPSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Request latency.",
		}, []string{"route", "method", "status"}),
	}
}

func NopHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal:          discard.NewCounter(),
		RequestDurationSeconds: discard.NewHistogram(),
	}
}

func (m *HTTPMetrics) Observe(route string, method string, status int, duration time.Duration) {
	labels := []string{"route", route, "method", method, "status", strconv.Itoa(status)}
	m.RequestsTotal.With(labels...).Add(1)
	m.RequestDurationSeconds.With(labels...).Observe(duration.Seconds())
}
