// Package metrics exposes Prometheus counters for the points economy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_ledger_entries_total",
		Help: "Ledger entries appended, by transaction type.",
	}, []string{"type"})

	TaskCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_task_completions_total",
		Help: "Task completions credited, by task key.",
	}, []string{"task"})

	ScenarioPurchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_scenario_purchases_total",
		Help: "Consumption scenario purchases, by scenario key.",
	}, []string{"scenario"})

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_votes_cast_total",
		Help: "Governance votes cast, by position.",
	}, []string{"position"})

	ConfigActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_config_activations_total",
		Help: "Deferred economic config changes applied by the sweep.",
	})

	NoticesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_notices_published_total",
		Help: "Public notices emitted.",
	})
)
