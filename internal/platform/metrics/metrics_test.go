package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

func TestElectionMetricsRecordsObservations(t *testing.T) {
	ballots := generic.NewCounter("ballots_total")
	transitions := generic.NewCounter("transitions_total")
	tally := generic.NewHistogram("tally_duration_seconds", 10)
	m := &ElectionMetrics{
		BallotsTotal:         ballots,
		TransitionsTotal:     transitions,
		TallyDurationSeconds: tally,
	}

	m.ObserveBallot("confirmed")
	m.ObserveBallot("already_voted")
	m.ObserveTransition("upcoming", "ongoing")
	m.ObserveTally(250*time.Millisecond, true)

	if got := ballots.Value(); got != 2 {
		t.Fatalf("expected 2 ballot observations, got %v", got)
	}
	if got := transitions.Value(); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := tally.Quantile(0.5); got != 0.25 {
		t.Fatalf("expected median tally 0.25s, got %v", got)
	}
}

func TestNopMetricsAcceptObservations(t *testing.T) {
	NopElectionMetrics().ObserveBallot("confirmed")
	NopElectionMetrics().ObserveTally(time.Second, false)
	NopHTTPMetrics().Observe("GET /healthz", http.MethodGet, http.StatusOK, time.Millisecond)
}

func TestPromHTTPMetricsRegisterWithDefaultRegistry(t *testing.T) {
	m := PromHTTPMetrics()
	m.Observe("GET /v1/elections", http.MethodGet, http.StatusOK, 5*time.Millisecond)

	families, err := stdprometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics failed: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "guildhall_http_requests_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected guildhall_http_requests_total to be registered")
	}
}
