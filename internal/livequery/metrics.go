package livequery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// bindsTotal counts bind attempts by result
	bindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveview_livequery_binds_total",
		Help: "Total live query bind attempts by result",
	}, []string{"result"})

	// teardownsTotal counts released subscriptions
	teardownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveview_livequery_teardowns_total",
		Help: "Total live query subscriptions released",
	})

	// deliveriesTotal counts callback invocations by kind
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveview_livequery_deliveries_total",
		Help: "Total snapshot deliveries by kind (snapshot, nil)",
	}, []string{"kind"})

	// reportedErrorsTotal counts absorbed errors by code
	reportedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveview_livequery_errors_total",
		Help: "Total errors absorbed by live queries by code",
	}, []string{"code"})

	// pinChangesTotal counts pin signal emissions seen by trackers
	pinChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveview_livequery_pin_changes_total",
		Help: "Total pin signal emissions observed by pin trackers",
	})
)
