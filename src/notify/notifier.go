// Package notify pushes control-plane events to websocket subscribers.
package notify

import "tradecontrol/src/model"

// Topics a client can subscribe to. A client with no subscriptions
// receives everything.
const (
	TopicPositions = "position_updates"
	TopicPortfolio = "portfolio_updates"
	TopicAlerts    = "risk_alerts"
	TopicSignals   = "signals"
	TopicSystem    = "system"
)

// Notifier is the broadcast surface the services publish through.
type Notifier interface {
	BroadcastPositionChange(change *model.PositionChange)
	BroadcastPositionSummary(summary *model.PositionSummary)
	BroadcastPortfolioSummary(metrics *model.PortfolioMetrics)
	BroadcastRiskAlert(alert *model.RiskAlert)
	BroadcastEmergencyStop(reason string)
	BroadcastSignal(signal *model.TradingSignal)
	BroadcastEngineStatus(status map[string]interface{})
}

// Nop discards every event. Used in tests and in headless deployments.
type Nop struct{}

func (Nop) BroadcastPositionChange(*model.PositionChange)     {}
func (Nop) BroadcastPositionSummary(*model.PositionSummary)   {}
func (Nop) BroadcastPortfolioSummary(*model.PortfolioMetrics) {}
func (Nop) BroadcastRiskAlert(*model.RiskAlert)               {}
func (Nop) BroadcastEmergencyStop(string)                     {}
func (Nop) BroadcastSignal(*model.TradingSignal)              {}
func (Nop) BroadcastEngineStatus(map[string]interface{})      {}
