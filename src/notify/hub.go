package notify

import (
	"context"
	"encoding/json"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

// envelope is the wire format for every pushed event.
type envelope struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type topicMessage struct {
	topic   string
	payload []byte
}

// Hub manages the active websocket connections and routes events to clients
// by topic subscription. Register, unregister, and broadcast all funnel
// through the Run loop, so the clients map needs no lock.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan topicMessage
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan topicMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes hub events until the context is cancelled. Start it in its
// own goroutine before serving the websocket endpoint.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			logger.WithFields(map[string]interface{}{
				"component": "NotifyHub",
				"clients":   len(h.clients),
			}).Info("Websocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			logger.WithFields(map[string]interface{}{
				"component": "NotifyHub",
				"clients":   len(h.clients),
			}).Info("Websocket client disconnected")

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.subscribed(msg.topic) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer: drop the connection rather than
					// stall every other subscriber.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) publish(eventType, topic string, data interface{}) {
	payload, err := json.Marshal(envelope{
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to marshal websocket event")
		return
	}

	select {
	case h.broadcast <- topicMessage{topic: topic, payload: payload}:
	default:
		logger.WithField("component", "NotifyHub").
			Warn("Broadcast buffer full, dropping event")
	}
}

func (h *Hub) BroadcastPositionChange(change *model.PositionChange) {
	h.publish("position_change", TopicPositions, change)
}

func (h *Hub) BroadcastPositionSummary(summary *model.PositionSummary) {
	h.publish("position_summary", TopicPositions, summary)
}

func (h *Hub) BroadcastPortfolioSummary(metrics *model.PortfolioMetrics) {
	h.publish("portfolio_update", TopicPortfolio, metrics)
}

func (h *Hub) BroadcastRiskAlert(alert *model.RiskAlert) {
	h.publish("risk_alert", TopicAlerts, alert)
}

func (h *Hub) BroadcastEmergencyStop(reason string) {
	h.publish("emergency_stop", TopicSystem, map[string]string{"reason": reason})
}

func (h *Hub) BroadcastSignal(signal *model.TradingSignal) {
	h.publish("trading_signal", TopicSignals, signal)
}

func (h *Hub) BroadcastEngineStatus(status map[string]interface{}) {
	h.publish("engine_status", TopicSystem, status)
}
