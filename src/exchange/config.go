package exchange

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BybitBaseURL        string  `envconfig:"BYBIT_BASE_URL" default:"https://api.bybit.com"`
	BybitTestnetBaseURL string  `envconfig:"BYBIT_TESTNET_BASE_URL" default:"https://api-testnet.bybit.com"`
	RecvWindowMs        int     `envconfig:"BYBIT_RECV_WINDOW_MS" default:"5000"`
	RequestTimeoutSec   int     `envconfig:"BYBIT_REQUEST_TIMEOUT_SEC" default:"15"`
	RequestsPerSecond   float64 `envconfig:"BYBIT_REQUESTS_PER_SECOND" default:"8"`
	RequestBurst        int     `envconfig:"BYBIT_REQUEST_BURST" default:"16"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
