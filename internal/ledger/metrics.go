package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stakeCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_stake_total",
		Help: "The number of accepted stake operations.",
	})
	withdrawCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_withdraw_total",
		Help: "The number of pool positions closed by withdrawal.",
	})
	forfeitCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_forfeit_total",
		Help: "The number of pool positions closed without payout because the delegate was slashed.",
	})
	redelegateCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_delegate_total",
		Help: "The number of accepted delegation changes.",
	})
	slashCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_slash_total",
		Help: "The number of operators transitioned to slashed.",
	})
	poolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pools",
		Help: "The number of registered pools.",
	})
	rejectedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejected_total",
		Help: "Rejected operations by error class.",
	}, []string{"class"})
)
