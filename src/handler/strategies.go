package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

type strategyService interface {
	AddStrategy(ctx context.Context, s *model.Strategy) error
	RemoveStrategy(ctx context.Context, id uint) error
	Activate(ctx context.Context, id uint) error
	Pause(ctx context.Context, id uint) error
	SetStrategyLimits(ctx context.Context, id uint, limits map[string]any) error
	Strategy(id uint) (*model.Strategy, error)
	Strategies() []model.Strategy
	Status() map[string]interface{}
}

func strategyIDParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	return uint(id), err
}

func writeStrategyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrStrategyNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrDuplicateStrategy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.WithError(err).Error("Strategy operation failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// ListStrategiesHandler returns every registered strategy.
func ListStrategiesHandler(svc strategyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Strategies()); err != nil {
			logger.WithError(err).Error("failed to encode strategy list")
		}
	}
}

// GetStrategyHandler returns one strategy by id.
func GetStrategyHandler(svc strategyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strategyIDParam(r)
		if err != nil {
			http.Error(w, "invalid strategy id", http.StatusBadRequest)
			return
		}

		s, err := svc.Strategy(id)
		if err != nil {
			writeStrategyError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			logger.WithError(err).Error("failed to encode strategy")
		}
	}
}

// CreateStrategyHandler registers a new strategy in inactive status.
func CreateStrategyHandler(svc strategyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s model.Strategy
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := svc.AddStrategy(r.Context(), &s); err != nil {
			writeStrategyError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(&s); err != nil {
			logger.WithError(err).Error("failed to encode created strategy")
		}
	}
}

// ActivateStrategyHandler moves a strategy to active status.
func ActivateStrategyHandler(svc strategyService) http.HandlerFunc {
	return strategyTransitionHandler(svc, svc.Activate)
}

// PauseStrategyHandler suspends a strategy.
func PauseStrategyHandler(svc strategyService) http.HandlerFunc {
	return strategyTransitionHandler(svc, svc.Pause)
}

// UpdateStrategyLimitsHandler replaces a strategy's risk limit overrides.
func UpdateStrategyLimitsHandler(svc strategyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strategyIDParam(r)
		if err != nil {
			http.Error(w, "invalid strategy id", http.StatusBadRequest)
			return
		}

		var limits map[string]any
		if err := json.NewDecoder(r.Body).Decode(&limits); err != nil || len(limits) == 0 {
			http.Error(w, "a non-empty limits object is required", http.StatusBadRequest)
			return
		}

		if err := svc.SetStrategyLimits(r.Context(), id, limits); err != nil {
			if errors.Is(err, model.ErrStrategyNotFound) {
				writeStrategyError(w, err)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s, err := svc.Strategy(id)
		if err != nil {
			writeStrategyError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			logger.WithError(err).Error("failed to encode strategy")
		}
	}
}

// DeleteStrategyHandler stops a strategy and removes it from the registry.
func DeleteStrategyHandler(svc strategyService) http.HandlerFunc {
	return strategyTransitionHandler(svc, svc.RemoveStrategy)
}

func strategyTransitionHandler(svc strategyService, op func(ctx context.Context, id uint) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strategyIDParam(r)
		if err != nil {
			http.Error(w, "invalid strategy id", http.StatusBadRequest)
			return
		}

		if err := op(r.Context(), id); err != nil {
			writeStrategyError(w, err)
			return
		}

		s, err := svc.Strategy(id)
		if err != nil {
			// Removal drops the strategy from the registry; report done.
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			logger.WithError(err).Error("failed to encode strategy")
		}
	}
}

// EngineStatusHandler reports the engine registry and execution counters.
func EngineStatusHandler(svc strategyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			logger.WithError(err).Error("failed to encode engine status")
		}
	}
}
