package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
	"tradecontrol/src/possync"
)

type positionSource interface {
	OpenPositions() []model.Position
}

type syncService interface {
	positionSource
	PositionSummary() *model.PositionSummary
	ForceSync(ctx context.Context) error
	ClosePosition(ctx context.Context, connectionID uint, symbol string, quantity *float64) error
	Stats() possync.Stats
}

// ListPositionsHandler returns the cached open positions.
func ListPositionsHandler(svc syncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.OpenPositions()); err != nil {
			logger.WithError(err).Error("failed to encode positions")
		}
	}
}

// PositionSummaryHandler returns the aggregate position view.
func PositionSummaryHandler(svc syncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.PositionSummary()); err != nil {
			logger.WithError(err).Error("failed to encode position summary")
		}
	}
}

// ForceSyncHandler runs an immediate reconciliation cycle and blocks until
// it finishes.
func ForceSyncHandler(svc syncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ForceSync(r.Context()); err != nil {
			logger.WithError(err).Error("forced sync failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Stats()); err != nil {
			logger.WithError(err).Error("failed to encode sync stats")
		}
	}
}

// SyncStatsHandler reports the reconciliation counters.
func SyncStatsHandler(svc syncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Stats()); err != nil {
			logger.WithError(err).Error("failed to encode sync stats")
		}
	}
}

// ClosePositionHandler submits a reduce-only close for one position. Omitting
// quantity closes the full size.
func ClosePositionHandler(svc syncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ConnectionID uint     `json:"connection_id"`
			Symbol       string   `json:"symbol"`
			Quantity     *float64 `json:"quantity,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Symbol == "" || body.ConnectionID == 0 {
			http.Error(w, "connection_id and symbol are required", http.StatusBadRequest)
			return
		}

		if err := svc.ClosePosition(r.Context(), body.ConnectionID, body.Symbol, body.Quantity); err != nil {
			if errors.Is(err, model.ErrPositionNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("close position failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}
