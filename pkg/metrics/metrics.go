package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthorizationDecisions counts isAuthorized evaluations and their outcome
	// (allow|deny|error) per resource.
	AuthorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_authorization_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"resource", "result"},
	)

	// AdminBypasses counts decisions short-circuited by admin membership.
	AdminBypasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowgate_authorization_admin_bypasses_total",
			Help: "Total number of decisions resolved by the admin override",
		},
	)

	// StoreMutations counts create/update/delete operations on authorization
	// rows by outcome (success|failure).
	StoreMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_authorization_store_mutations_total",
			Help: "Total number of authorization store mutations",
		},
		[]string{"operation", "result"},
	)
)
