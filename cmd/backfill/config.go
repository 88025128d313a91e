package backfill

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartDt     time.Time `envconfig:"BACKFILL_START_DATE" default:"2026-01-01T00:00:00Z"`
	EndDt       time.Time `envconfig:"BACKFILL_END_DATE" default:"2027-01-01T00:00:00Z"`
	DurationStr string    `envconfig:"BACKFILL_DURATION" default:"1h"`
	AutoMode    bool      `envconfig:"BACKFILL_AUTO_MODE" default:"false"`
	Symbol      string    `envconfig:"BACKFILL_SYMBOL" default:"BTC"`
	Quote       string    `envconfig:"BACKFILL_QUOTE" default:"USDT"`
	Limit       int       `envconfig:"BACKFILL_LIMIT" default:"1000"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
