package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/engine"
	"tradecontrol/src/handler"
	"tradecontrol/src/notify"
	"tradecontrol/src/possync"
	"tradecontrol/src/repository"
	"tradecontrol/src/risk"
)

// Deps are the service objects the API layer exposes. The server itself
// holds no state beyond routing.
type Deps struct {
	Engine      *engine.Engine
	Risk        *risk.Manager
	Sync        *possync.Service
	Alerts      *repository.RiskAlertRepository
	Connections *repository.ConnectionRepository
	Hub         *notify.Hub
}

// NewRouter builds the full route table.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", deps.Hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/engine/status", handler.EngineStatusHandler(deps.Engine))

		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", handler.ListStrategiesHandler(deps.Engine))
			r.Post("/", handler.CreateStrategyHandler(deps.Engine))
			r.Get("/{id}", handler.GetStrategyHandler(deps.Engine))
			r.Post("/{id}/activate", handler.ActivateStrategyHandler(deps.Engine))
			r.Post("/{id}/pause", handler.PauseStrategyHandler(deps.Engine))
			r.Put("/{id}/limits", handler.UpdateStrategyLimitsHandler(deps.Engine))
			r.Delete("/{id}", handler.DeleteStrategyHandler(deps.Engine))
		})

		r.Route("/risk", func(r chi.Router) {
			r.Get("/summary", handler.RiskSummaryHandler(deps.Risk, deps.Engine, deps.Alerts))
			r.Get("/report", handler.PositionRiskReportHandler(deps.Sync, deps.Engine))
			r.Put("/limits", handler.UpdateGlobalLimitHandler(deps.Risk))
			r.Post("/emergency-stop", handler.TriggerEmergencyStopHandler(deps.Risk, deps.Hub))
			r.Post("/emergency-stop/reset", handler.ResetEmergencyStopHandler(deps.Risk))
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", handler.ListPositionsHandler(deps.Sync))
			r.Get("/summary", handler.PositionSummaryHandler(deps.Sync))
			r.Post("/sync", handler.ForceSyncHandler(deps.Sync))
			r.Get("/sync/stats", handler.SyncStatsHandler(deps.Sync))
			r.Post("/close", handler.ClosePositionHandler(deps.Sync))
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", handler.ListConnectionsHandler(deps.Connections))
			r.Post("/", handler.CreateConnectionHandler(deps.Connections))
		})
	})

	return r
}

// StartServer serves the API until SIGINT/SIGTERM, then shuts down
// gracefully. onShutdown runs after the listener stops accepting, so the
// periodic jobs can drain before the process exits.
func StartServer(port string, deps Deps, onShutdown func()) {
	r := NewRouter(deps)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}

	if onShutdown != nil {
		onShutdown()
	}
}
