// Package monitoring exposes the control plane's Prometheus metrics. The
// vectors are package level and registered through promauto, so importing
// packages only call the Record helpers.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "engine",
		Name:      "signals_generated_total",
		Help:      "Trading signals produced per strategy type and action",
	},
	[]string{"strategy_type", "action"},
)

var ExecutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "engine",
		Name:      "executions_total",
		Help:      "Order executions per result",
	},
	[]string{"symbol", "result"}, // result: filled, rejected, failed
)

var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradecontrol",
		Subsystem: "engine",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one full engine tick across all strategies",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)

var StrategyFaults = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "engine",
		Name:      "strategy_faults_total",
		Help:      "Per strategy faults that moved a strategy to error status",
	},
	[]string{"strategy_type"},
)

var ActiveStrategies = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradecontrol",
		Subsystem: "engine",
		Name:      "strategies",
		Help:      "Registered strategies by status",
	},
	[]string{"status"},
)

var RiskChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "risk",
		Name:      "checks_total",
		Help:      "Risk validations per outcome",
	},
	[]string{"outcome"}, // accepted, rejected
)

var RiskAlertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "risk",
		Name:      "alerts_total",
		Help:      "Risk alerts raised per type and level",
	},
	[]string{"type", "level"},
)

var EmergencyStopActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecontrol",
		Subsystem: "risk",
		Name:      "emergency_stop_active",
		Help:      "Whether the emergency stop is engaged (1) or clear (0)",
	},
)

var SyncCyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "possync",
		Name:      "cycles_total",
		Help:      "Completed position reconciliation cycles",
	},
)

var SyncErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "possync",
		Name:      "errors_total",
		Help:      "Reconciliation failures per connection",
	},
	[]string{"connection"},
)

var PositionChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecontrol",
		Subsystem: "possync",
		Name:      "position_changes_total",
		Help:      "Detected position changes per kind",
	},
	[]string{"kind"}, // new, updated, closed
)

var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecontrol",
		Subsystem: "possync",
		Name:      "open_positions",
		Help:      "Open positions currently cached",
	},
)

var PortfolioExposure = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecontrol",
		Subsystem: "risk",
		Name:      "portfolio_exposure_usdt",
		Help:      "Total open position notional in USDT",
	},
)

var ExchangeRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradecontrol",
		Subsystem: "exchange",
		Name:      "request_duration_seconds",
		Help:      "Exchange API request latency",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
	},
	[]string{"endpoint"},
)

func RecordSignal(strategyType, action string) {
	SignalsGenerated.WithLabelValues(strategyType, action).Inc()
}

func RecordExecution(symbol, result string) {
	ExecutionsTotal.WithLabelValues(symbol, result).Inc()
}

func RecordRiskCheck(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	RiskChecksTotal.WithLabelValues(outcome).Inc()
}

func RecordAlert(alertType, level string) {
	RiskAlertsTotal.WithLabelValues(alertType, level).Inc()
}

func SetEmergencyStop(active bool) {
	if active {
		EmergencyStopActive.Set(1)
	} else {
		EmergencyStopActive.Set(0)
	}
}

func RecordSyncCycle(changes map[string]int, openPositions int) {
	SyncCyclesTotal.Inc()
	for kind, n := range changes {
		PositionChangesTotal.WithLabelValues(kind).Add(float64(n))
	}
	OpenPositions.Set(float64(openPositions))
}
