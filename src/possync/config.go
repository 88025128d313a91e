package possync

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config tunes the reconciliation cadence and the noise thresholds that keep
// sub-cent mark price wobble from producing change events every cycle.
type Config struct {
	SyncIntervalSec int     `envconfig:"SYNC_INTERVAL_SEC" default:"5"`
	SizeThreshold   float64 `envconfig:"SYNC_THRESHOLD_SIZE" default:"0.001"`
	PnlThreshold    float64 `envconfig:"SYNC_THRESHOLD_PNL" default:"0.01"`
	PriceThreshold  float64 `envconfig:"SYNC_THRESHOLD_PRICE" default:"0.01"`
	PctThreshold    float64 `envconfig:"SYNC_THRESHOLD_PCT" default:"0.01"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		logger.WithError(err).Error("Failed to process possync config")
		panic(err)
	}

	return config
}

// Thresholds is the drift tolerance per tracked field.
type Thresholds struct {
	Size          float64
	UnrealizedPnl float64
	MarkPrice     float64
	PnlPct        float64
}

func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		Size:          c.SizeThreshold,
		UnrealizedPnl: c.PnlThreshold,
		MarkPrice:     c.PriceThreshold,
		PnlPct:        c.PctThreshold,
	}
}
