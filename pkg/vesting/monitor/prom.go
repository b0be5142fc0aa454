package monitor

import (
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{Name: "vesting_balance", Help: "Watched account balances"},
	[]string{"account", "denomination"},
)

func (b *BalanceMonitor) updateProm(acc solana.PublicKey, lamports uint64) {
	promBalance.WithLabelValues(acc.String(), "SOL").Set(LamportsToSol(lamports))
}

// LamportsToSol converts lamports to SOL.
func LamportsToSol(lamports uint64) float64 { return float64(lamports) / float64(solana.LAMPORTS_PER_SOL) }
