package trailing

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	Enabled        bool   `envconfig:"TRAILING_STOP_ENABLED" default:"false"`
	IntervalSec    int    `envconfig:"TRAILING_STOP_INTERVAL_SEC" default:"60"`
	Lookback       int    `envconfig:"TRAILING_STOP_LOOKBACK" default:"20"`
	CandleInterval string `envconfig:"TRAILING_STOP_CANDLE_INTERVAL" default:"1"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		logger.WithError(err).Error("Failed to process trailing config")
		panic(err)
	}

	return config
}
