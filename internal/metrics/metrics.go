// Package metrics provides application-level Prometheus counters. They live
// in a private registry served by Handler, so importing this package never
// touches the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector in this package.
var Registry = prometheus.NewRegistry()

// Operation counters.
var (
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnodes_commands_total",
		Help: "Terminal inputs handled, by stage and resolution kind.",
	}, []string{"stage", "kind"})

	NodesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldnodes_nodes_created_total",
		Help: "Nodes persisted through any surface.",
	})

	ConnectionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldnodes_connections_created_total",
		Help: "Reciprocal connections recorded.",
	})

	StorageErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldnodes_storage_errors_total",
		Help: "Persistence failures surfaced to a user.",
	})

	GuestDenials = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldnodes_guest_denials_total",
		Help: "Write commands rejected because the identity was a guest.",
	})

	SuggestFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldnodes_suggest_fallback_total",
		Help: "Times the model-backed suggester fell back to the heuristic order.",
	})

	TendRepairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnodes_tend_repairs_total",
		Help: "Records fixed by the tending pass, by repair kind.",
	}, []string{"kind"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnodes_http_requests_total",
		Help: "API requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandsTotal,
		NodesCreated,
		ConnectionsCreated,
		StorageErrors,
		GuestDenials,
		SuggestFallbacks,
		TendRepairs,
		HTTPRequests,
	)
}

// Inc increments the given counter by 1.
func Inc(c prometheus.Counter) { c.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
