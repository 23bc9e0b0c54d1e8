//Package metrics holds the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	//CachedRules is the number of enabled rules held in the dispatch cache across all guilds
	CachedRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autorole_cached_rules",
			Help: "Number of enabled autorole rules in the dispatch cache",
		},
	)

	//RoleOperations counts external role mutations by operation and outcome
	RoleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorole_role_operations_total",
			Help: "External role add/remove calls by outcome",
		},
		[]string{"op", "result"}, // op: grant|revoke, result: ok|failed|invalid
	)

	//GrantDecisions counts grant reason changes made by the service
	GrantDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorole_grant_decisions_total",
			Help: "Grant reasons created, extended or removed",
		},
		[]string{"action", "kind"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autorole_sweep_duration_seconds",
			Help:    "Duration of background sweeps",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"scheduler"},
	)

	//SweepsSkipped counts ticks dropped because the previous sweep was still running
	SweepsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorole_sweeps_skipped_total",
			Help: "Scheduler ticks skipped because a sweep was in flight",
		},
		[]string{"scheduler"},
	)

	SweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorole_sweep_items_total",
			Help: "Items processed by background sweeps",
		},
		[]string{"scheduler", "result"},
	)

	MemberPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autorole_member_pages_total",
			Help: "Member list pages fetched by the antiquity sweep",
		},
	)

	BestEffortFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autorole_best_effort_failures_total",
			Help: "Fire-and-forget operations that failed or panicked",
		},
		[]string{"op"},
	)
)
