package funding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var promAirdropAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{Name: "vesting_airdrop_attempts_total", Help: "Airdrop attempts by result"},
	[]string{"result"},
)
