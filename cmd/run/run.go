// Package run wires the full control plane together: database, exchange
// clients, risk manager, synchronizer, engine, scheduler, websocket hub, and
// the HTTP API. It is the composition root; the packages it assembles do not
// know about each other beyond their interfaces.
package run

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/ai"
	"tradecontrol/src/database"
	"tradecontrol/src/engine"
	"tradecontrol/src/exchange"
	"tradecontrol/src/monitoring"
	"tradecontrol/src/notify"
	"tradecontrol/src/possync"
	"tradecontrol/src/repository"
	"tradecontrol/src/risk"
	"tradecontrol/src/scheduler"
	"tradecontrol/src/security"
	"tradecontrol/src/server"
	"tradecontrol/src/trailing"
)

// Start boots every subsystem and serves the API until the process receives
// a termination signal. It returns after all periodic jobs have drained.
func Start() error {
	if err := database.InitMainDB(); err != nil {
		return err
	}

	engineConfig := engine.GetConfig()
	riskConfig := risk.GetConfig()
	syncConfig := possync.GetConfig()
	serverConfig := server.GetConfig()

	strategyRepo := repository.NewStrategyRepository()
	tradeRepo := repository.NewTradeRepository()
	positionRepo := repository.NewPositionRepository()
	alertRepo := repository.NewRiskAlertRepository()
	connectionRepo := repository.NewConnectionRepository()

	provider := exchange.NewManagedProvider(connectionRepo, security.Decryptor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	go hub.Run(ctx)

	emergency := risk.NewEmergencyStop()
	manager := risk.NewManager(riskConfig.Limits(), emergency)
	aggregator := risk.NewAggregator(tradeRepo, riskConfig.StatsWindowDays)
	monitor := risk.NewMonitor(manager, alertRepo, hub, riskConfig)

	syncService := possync.NewService(provider, connectionRepo, positionRepo, hub, syncConfig.Thresholds())

	eng := engine.NewEngine(
		engineConfig,
		strategyRepo,
		tradeRepo,
		connectionRepo,
		provider,
		manager,
		aggregator,
		syncService,
		hub,
		ai.FromConfig(ai.GetConfig()),
	)
	if err := eng.LoadStrategies(ctx); err != nil {
		return err
	}

	sched := scheduler.New()
	sched.AddJob("execution_tick",
		time.Duration(engineConfig.TickIntervalSec)*time.Second, eng.Tick)
	sched.AddJob("position_sync",
		time.Duration(syncConfig.SyncIntervalSec)*time.Second, syncService.SyncAll)
	sched.AddJob("risk_monitor", riskConfig.MonitorInterval, func(ctx context.Context) error {
		metrics, err := eng.PortfolioSnapshot(ctx)
		if err != nil {
			return err
		}
		monitoring.SetEmergencyStop(emergency.Active())
		return monitor.Check(ctx, metrics, syncService.OpenPositions())
	})
	sched.AddJob("alert_cleanup", riskConfig.AlertCleanupInterval, monitor.CleanupExpired)
	if trailConfig := trailing.GetConfig(); trailConfig.Enabled {
		trailer := trailing.NewManager(provider, syncService, trailConfig)
		sched.AddJob("trailing_stop",
			time.Duration(trailConfig.IntervalSec)*time.Second, trailer.Run)
	}
	sched.AddJob("status_broadcast", 5*time.Second, func(context.Context) error {
		hub.BroadcastEngineStatus(eng.Status())
		return nil
	})
	sched.Start(ctx)

	logger.WithField("component", "Run").Info("Control plane started")

	server.StartServer(serverConfig.Port, server.Deps{
		Engine:      eng,
		Risk:        manager,
		Sync:        syncService,
		Alerts:      alertRepo,
		Connections: connectionRepo,
		Hub:         hub,
	}, func() {
		sched.Stop()
		cancel()
	})

	return nil
}
