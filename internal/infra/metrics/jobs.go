package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobClaimsTotal, jobsCompletedTotal, jobsReclaimedTotal) }

var jobClaimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_job_claims_total",
		Help: "Total claim attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // 'won', 'conflict', 'error'
)

var jobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_jobs_completed_total",
		Help: "Total jobs finalized by their owner, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'requeued'
)

var jobsReclaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fleet_jobs_reclaimed_total",
		Help: "Total running jobs released from stale agents, labeled by outcome.",
	},
	[]string{"outcome"}, // 'requeued', 'failed'
)

func IncJobClaim(outcome string) {
	jobClaimsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncJobCompleted(status string) {
	jobsCompletedTotal.WithLabelValues(norm(status)).Inc()
}

func AddJobsReclaimed(outcome string, n int) {
	jobsReclaimedTotal.WithLabelValues(norm(outcome)).Add(float64(n))
}
