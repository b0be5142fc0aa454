package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promQueryResults = promauto.NewGaugeVec(
	prometheus.GaugeOpts{Name: "vesting_query_results", Help: "Accounts returned by the last program account query"},
	[]string{"program"},
)
