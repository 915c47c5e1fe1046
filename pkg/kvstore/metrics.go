package kvstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeErrorsTotal tracks failed store operations by operation name.
	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perflayer_store_errors_total",
			Help: "Total number of failed key-value store operations",
		},
		[]string{"operation"}, // "get", "set", "delete", "incrby", ...
	)
)
