package txm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess        = "success"
	outcomeSignerMissing  = "signer_missing"
	outcomeRPCError       = "rpc_error"
	outcomeRejected       = "rejected"
	outcomeFailed         = "failed"
	outcomeConfirmTimeout = "confirm_timeout"
)

var promSubmissions = promauto.NewCounterVec(
	prometheus.CounterOpts{Name: "vesting_tx_submissions_total", Help: "Transactions submitted by outcome"},
	[]string{"outcome"},
)
