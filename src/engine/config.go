package engine

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config bounds the execution loop. MaxConcurrent sizes the per-tick
// semaphore so concurrent strategies cannot exceed the exchange rate budget.
type Config struct {
	TickIntervalSec    int    `envconfig:"ENGINE_TICK_INTERVAL_SEC" default:"1"`
	MaxConcurrent      int    `envconfig:"ENGINE_MAX_CONCURRENT" default:"5"`
	StrategyTimeoutSec int    `envconfig:"ENGINE_STRATEGY_TIMEOUT_SEC" default:"10"`
	CandleInterval     string `envconfig:"ENGINE_CANDLE_INTERVAL" default:"1"`
	CandleLimit        int    `envconfig:"ENGINE_CANDLE_LIMIT" default:"100"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		logger.WithError(err).Error("Failed to process engine config")
		panic(err)
	}

	return config
}
