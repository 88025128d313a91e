package risk

import (
	"testing"

	"tradecontrol/src/model"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testLimits() GlobalLimits {
	return GlobalLimits{
		MaxTotalExposure:     1000,
		MaxDailyLoss:         2000,
		MaxPortfolioDrawdown: 0.15,
		MaxPositionRisk:      0.02,
		MaxCorrelationRisk:   0.70,
		MaxSinglePosition:    0.10,
		MinAccountBalance:    1000,
		MaxLeverageGlobal:    10,
		MaxPositions:         20,
	}
}

func healthyMetrics() *model.PortfolioMetrics {
	return &model.PortfolioMetrics{
		TotalEquity:      10000,
		AvailableBalance: 8000,
		TotalExposure:    900,
		DailyPnl:         50,
	}
}

func buySignal(qty, price float64) *model.TradingSignal {
	return &model.TradingSignal{
		StrategyID: 1,
		Symbol:     "BTCUSDT",
		Action:     model.SignalActionBuy,
		Quantity:   qty,
		Price:      price,
		Confidence: 0.7,
	}
}

func TestValidateExposureCeiling(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	t.Run("trade pushing past the ceiling is rejected", func(t *testing.T) {
		// 900 held + 150 requested breaks the 1000 ceiling.
		ok, violations := m.Validate(buySignal(1, 150), strat, ValidationContext{Metrics: healthyMetrics()})
		require.False(t, ok)
		require.NotEmpty(t, violations)
	})

	t.Run("trade fitting under the ceiling passes", func(t *testing.T) {
		// 900 held + 50 requested stays within 1000.
		ok, violations := m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: healthyMetrics()})
		require.True(t, ok)
		require.Empty(t, violations)
	})
}

func TestSetGlobalLimit(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	// 900 held + 150 requested breaks the initial 1000 ceiling.
	ok, _ := m.Validate(buySignal(1, 150), strat, ValidationContext{Metrics: healthyMetrics()})
	require.False(t, ok)

	require.NoError(t, m.SetGlobalLimit("max_total_exposure", 2000))
	require.Equal(t, 2000.0, m.Limits().MaxTotalExposure)

	ok, violations := m.Validate(buySignal(1, 150), strat, ValidationContext{Metrics: healthyMetrics()})
	require.True(t, ok)
	require.Empty(t, violations)

	require.NoError(t, m.SetGlobalLimit("max_positions", 5))
	require.Equal(t, 5, m.Limits().MaxPositions)

	err := m.SetGlobalLimit("max_moon_distance", 1)
	require.ErrorIs(t, err, model.ErrUnknownRiskLimit)

	err = m.SetGlobalLimit("max_daily_loss", -10)
	require.Error(t, err)
	require.Equal(t, 2000.0, m.Limits().MaxDailyLoss)
}

func TestValidateLeverageScalesTradeValue(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	// 50 notional at 10x is 500 of exposure; 900 held + 500 breaks the
	// 1000 ceiling that the unlevered trade fits under.
	levered := buySignal(1, 50)
	levered.Leverage = 10
	ok, violations := m.Validate(levered, strat, ValidationContext{Metrics: healthyMetrics()})
	require.False(t, ok)
	require.NotEmpty(t, violations)
	require.Contains(t, violations[0], "500.00")

	ok, violations = m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: healthyMetrics()})
	require.True(t, ok, "violations: %v", violations)
}

func TestValidateResultingPositionSize(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	// A 950 position on 10000 equity sits just under the 10% ceiling.
	held := []model.Position{{
		Symbol:     "BTCUSDT",
		Side:       model.PositionSideLong,
		Size:       0.019,
		EntryPrice: 50000,
		MarkPrice:  50000,
		Status:     model.PositionStatusOpen,
	}}

	t.Run("adding past the ceiling is rejected", func(t *testing.T) {
		// The 75 add passes every per-trade check but grows the position
		// to 1025, past 10% of equity.
		ok, violations := m.Validate(buySignal(0.0015, 50000), strat, ValidationContext{
			Metrics:       healthyMetrics(),
			OpenPositions: held,
		})
		require.False(t, ok)
		require.Len(t, violations, 1)
		require.Contains(t, violations[0], "resulting position")
	})

	t.Run("reducing the position passes", func(t *testing.T) {
		sell := buySignal(0.0015, 50000)
		sell.Action = model.SignalActionSell
		ok, violations := m.Validate(sell, strat, ValidationContext{
			Metrics:       healthyMetrics(),
			OpenPositions: held,
		})
		require.True(t, ok, "violations: %v", violations)
	})
}

func TestValidateAccumulatesViolations(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 25}

	metrics := healthyMetrics()
	metrics.TotalEquity = 500
	metrics.DailyPnl = -3000

	ok, violations := m.Validate(buySignal(1, 150), strat, ValidationContext{Metrics: metrics})
	require.False(t, ok)
	// Exposure, daily loss, balance, both leverage tiers, and single-position
	// share all fail at once; none of them may mask the others.
	require.GreaterOrEqual(t, len(violations), 5)
}

func TestValidateEmergencyStopGating(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	m.Emergency().Trigger("drawdown limit reached")

	t.Run("entries blocked", func(t *testing.T) {
		ok, violations := m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: healthyMetrics()})
		require.False(t, ok)
		require.Len(t, violations, 1)
	})

	t.Run("exits blocked too", func(t *testing.T) {
		exit := buySignal(1, 50)
		exit.Action = model.SignalActionCloseLong
		ok, violations := m.Validate(exit, strat, ValidationContext{Metrics: healthyMetrics()})
		require.False(t, ok)
		require.Len(t, violations, 1)
		require.Contains(t, violations[0], "emergency stop")
	})

	t.Run("exits skip the limit tiers once the stop clears", func(t *testing.T) {
		cleared := NewManager(testLimits(), nil)
		exit := buySignal(1, 5000)
		exit.Action = model.SignalActionCloseShort
		// A trade value far past every ceiling; reducing risk is still allowed.
		ok, violations := cleared.Validate(exit, strat, ValidationContext{Metrics: healthyMetrics()})
		require.True(t, ok)
		require.Empty(t, violations)
	})

	t.Run("reset requires valid admin token", func(t *testing.T) {
		hash, err := bcrypt.GenerateFromPassword([]byte("operator-token"), bcrypt.DefaultCost)
		require.NoError(t, err)
		t.Setenv("ADMIN_TOKEN_HASH", string(hash))

		require.Error(t, m.Emergency().Reset("wrong-token"))
		require.True(t, m.Emergency().Active())

		require.NoError(t, m.Emergency().Reset("operator-token"))
		require.False(t, m.Emergency().Active())

		ok, _ := m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: healthyMetrics()})
		require.True(t, ok)
	})
}

func TestEmergencyStopTriggerIsIdempotent(t *testing.T) {
	stop := NewEmergencyStop()
	require.True(t, stop.Trigger("first reason"))
	require.False(t, stop.Trigger("second reason"))

	active, reason, _ := stop.Status()
	require.True(t, active)
	require.Equal(t, "first reason", reason)
}

func TestValidatePositionCap(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	positions := make([]model.Position, 20)
	for i := range positions {
		positions[i] = model.Position{Symbol: "ALT" + string(rune('A'+i)) + "USD", Status: model.PositionStatusOpen}
	}

	metrics := healthyMetrics()
	metrics.PositionCount = len(positions)

	t.Run("new symbol rejected at cap", func(t *testing.T) {
		ok, _ := m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: metrics, OpenPositions: positions})
		require.False(t, ok)
	})

	t.Run("adding to existing symbol allowed at cap", func(t *testing.T) {
		withBTC := append([]model.Position{{Symbol: "BTCUSDT", Status: model.PositionStatusOpen}}, positions[1:]...)
		ok, violations := m.Validate(buySignal(1, 50), strat, ValidationContext{Metrics: metrics, OpenPositions: withBTC})
		require.True(t, ok, "violations: %v", violations)
	})
}

func TestValidateStrategyLimits(t *testing.T) {
	m := NewManager(testLimits(), nil)

	t.Run("strategy override tightens position size", func(t *testing.T) {
		strat := &model.Strategy{
			ID:         1,
			Leverage:   1,
			RiskLimits: map[string]any{"max_position_size": float64(100)},
		}
		ok, _ := m.Validate(buySignal(1, 120), strat, ValidationContext{Metrics: healthyMetrics()})
		require.False(t, ok)
	})

	t.Run("strategy daily loss limit blocks", func(t *testing.T) {
		strat := &model.Strategy{ID: 1, Leverage: 1}
		ok, _ := m.Validate(buySignal(1, 50), strat, ValidationContext{
			Metrics:          healthyMetrics(),
			StrategyDailyPnl: -600,
		})
		require.False(t, ok)
	})
}

func TestValidateStopDistanceRisk(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	// Quantity 1 at price 50 with a stop at 49.5 risks 0.5 on 10k equity.
	safe := buySignal(1, 50)
	safe.StopLoss = floatPtr(49.5)
	ok, violations := m.Validate(safe, strat, ValidationContext{Metrics: healthyMetrics()})
	require.True(t, ok, "violations: %v", violations)

	risky := buySignal(20, 50)
	risky.StopLoss = floatPtr(25)
	_, violations = m.Validate(risky, strat, ValidationContext{Metrics: healthyMetrics()})
	require.NotEmpty(t, violations)
}

func TestValidateCorrelationRisk(t *testing.T) {
	m := NewManager(testLimits(), nil)
	strat := &model.Strategy{ID: 1, Leverage: 1}

	usdtHeavy := make([]model.Position, 8)
	for i := range usdtHeavy {
		usdtHeavy[i] = model.Position{Symbol: "ALT" + string(rune('A'+i)) + "USDT"}
	}

	metrics := healthyMetrics()
	metrics.PositionCount = len(usdtHeavy)

	ok, violations := m.Validate(buySignal(1, 50), strat, ValidationContext{
		Metrics:       metrics,
		OpenPositions: usdtHeavy,
	})
	require.False(t, ok)
	require.NotEmpty(t, violations)

	// With few positions the heuristic stays quiet.
	ok, _ = m.Validate(buySignal(1, 50), strat, ValidationContext{
		Metrics:       healthyMetrics(),
		OpenPositions: usdtHeavy[:3],
	})
	require.True(t, ok)
}

func floatPtr(v float64) *float64 { return &v }
