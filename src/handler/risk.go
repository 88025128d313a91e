package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
	"tradecontrol/src/risk"
	"tradecontrol/src/security"
)

type metricsSource interface {
	PortfolioSnapshot(ctx context.Context) (*model.PortfolioMetrics, error)
}

type alertLister interface {
	ListActive(ctx context.Context) ([]model.RiskAlert, error)
}

type stopNotifier interface {
	BroadcastEmergencyStop(reason string)
}

// RiskSummaryHandler reports the configured limits, live portfolio metrics,
// emergency stop state, and the active alerts in one payload.
func RiskSummaryHandler(manager *risk.Manager, metrics metricsSource, alerts alertLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := metrics.PortfolioSnapshot(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to compute portfolio snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		active, err := alerts.ListActive(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list active alerts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		stopped, reason, stoppedAt := manager.Emergency().Status()
		checks, blocked := manager.Stats()

		summary := map[string]interface{}{
			"limits":  manager.Limits(),
			"metrics": snapshot,
			"alerts":  active,
			"emergency_stop": map[string]interface{}{
				"active":     stopped,
				"reason":     reason,
				"stopped_at": stoppedAt,
			},
			"checks_total":  checks,
			"blocked_total": blocked,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			logger.WithError(err).Error("failed to encode risk summary")
		}
	}
}

// UpdateGlobalLimitHandler adjusts one account-wide risk limit at runtime.
func UpdateGlobalLimitHandler(manager *risk.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name and value are required", http.StatusBadRequest)
			return
		}

		if err := manager.SetGlobalLimit(body.Name, body.Value); err != nil {
			if errors.Is(err, model.ErrUnknownRiskLimit) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.Limits()); err != nil {
			logger.WithError(err).Error("failed to encode limits")
		}
	}
}

// TriggerEmergencyStopHandler lets an operator halt all new trading.
func TriggerEmergencyStopHandler(manager *risk.Manager, notifier stopNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
			http.Error(w, "a reason is required", http.StatusBadRequest)
			return
		}

		if manager.Emergency().Trigger("operator: " + body.Reason) {
			notifier.BroadcastEmergencyStop(body.Reason)
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// ResetEmergencyStopHandler clears the stop. The caller must present the
// admin token in the X-Admin-Token header.
func ResetEmergencyStopHandler(manager *risk.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if err := manager.Emergency().Reset(token); err != nil {
			if errors.Is(err, security.ErrAdminTokenRejected) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			logger.WithError(err).Error("emergency stop reset failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// PositionRiskReportHandler reports how much of the portfolio one symbol's
// position represents.
func PositionRiskReportHandler(positions positionSource, metrics metricsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}

		snapshot, err := metrics.PortfolioSnapshot(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to compute portfolio snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		var report []map[string]interface{}
		for _, p := range positions.OpenPositions() {
			if p.Symbol != symbol {
				continue
			}
			entry := map[string]interface{}{
				"position":       p,
				"value":          p.Value(),
				"unrealized_pnl": p.UnrealizedPnl,
				"leverage":       p.Leverage,
			}
			if snapshot.TotalEquity > 0 {
				entry["equity_share"] = p.Value() / snapshot.TotalEquity
			}
			report = append(report, entry)
		}
		if report == nil {
			http.Error(w, "no open position for symbol", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.WithError(err).Error("failed to encode position risk report")
		}
	}
}
