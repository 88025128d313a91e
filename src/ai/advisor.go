// Package ai integrates the optional advisory service. Advice is a hint, not
// a dependency: any failure or absence of the service means "no hint" and the
// engine proceeds on the strategy's own signal.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Hint is a non-binding suggestion for one symbol.
type Hint struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Comment    string  `json:"comment,omitempty"`
}

// MarketContext is the state handed to the advisor with each request.
type MarketContext struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Closes []float64 `json:"closes"`
	AsOf   time.Time `json:"as_of"`
}

// Advisor suggests signal parameters. Implementations must never be load
// bearing: a nil hint is always a valid outcome.
type Advisor interface {
	SuggestParameters(ctx context.Context, mc MarketContext) (*Hint, error)
}

// Nop is the advisor used when no service is configured.
type Nop struct{}

func (Nop) SuggestParameters(context.Context, MarketContext) (*Hint, error) {
	return nil, nil
}

// HTTPAdvisor calls a remote advisory endpoint over REST.
type HTTPAdvisor struct {
	http *resty.Client
}

func NewHTTPAdvisor(config *Config) *HTTPAdvisor {
	client := resty.New().
		SetBaseURL(config.AdvisorURL).
		SetTimeout(time.Duration(config.RequestTimeoutSec) * time.Second)
	if config.AdvisorToken != "" {
		client.SetAuthToken(config.AdvisorToken)
	}

	return &HTTPAdvisor{http: client}
}

// FromConfig returns the HTTP advisor when a URL is configured, Nop otherwise.
func FromConfig(config *Config) Advisor {
	if config.AdvisorURL == "" {
		logger.WithField("component", "AIAdvisor").
			Info("No advisor URL configured, advice disabled")
		return Nop{}
	}
	return NewHTTPAdvisor(config)
}

func (a *HTTPAdvisor) SuggestParameters(ctx context.Context, mc MarketContext) (*Hint, error) {
	var hint Hint

	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(mc).
		SetResult(&hint).
		Post("/v1/suggest")
	if err != nil {
		return nil, fmt.Errorf("advisor request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("advisor returned status %d", resp.StatusCode())
	}

	if hint.Action == "" {
		return nil, nil
	}
	return &hint, nil
}
