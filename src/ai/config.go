package ai

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config points at the optional advisory service. An empty URL disables it.
type Config struct {
	AdvisorURL        string `envconfig:"AI_ADVISOR_URL" default:""`
	AdvisorToken      string `envconfig:"AI_ADVISOR_TOKEN" default:""`
	RequestTimeoutSec int    `envconfig:"AI_ADVISOR_TIMEOUT_SEC" default:"5"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		logger.WithError(err).Error("Failed to process ai config")
		panic(err)
	}

	return config
}
