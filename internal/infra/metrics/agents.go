package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(agentsRegisteredTotal, heartbeatsTotal, agentsMarkedOfflineTotal) }

var agentsRegisteredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_agents_registered_total",
		Help: "Total agent registrations, labeled by region.",
	},
	[]string{"region"},
)

var heartbeatsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fleet_heartbeats_total",
		Help: "Total heartbeats accepted.",
	},
)

var agentsMarkedOfflineTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fleet_agents_marked_offline_total",
		Help: "Total agents marked offline by the reclaimer.",
	},
)

func IncAgentRegistered(region string) {
	agentsRegisteredTotal.WithLabelValues(norm(region)).Inc()
}

func IncHeartbeat() { heartbeatsTotal.Inc() }

func AddAgentsMarkedOffline(n int) { agentsMarkedOfflineTotal.Add(float64(n)) }
