// Package strategy holds the pure signal-generation algorithms. Generators
// are deterministic: the same strategy parameters and market snapshot always
// produce the same signal, which keeps them directly testable.
package strategy

import (
	"fmt"
	"time"

	"tradecontrol/src/model"
)

// MarketSnapshot is the slice of market state one generator sees for one
// tick. Closes are chronological, oldest first; Price is the latest close.
type MarketSnapshot struct {
	Symbol    string
	Closes    []float64
	Price     float64
	Timestamp time.Time
}

// Generator turns a market snapshot into at most one trading signal.
// A nil signal with a nil error means hold.
type Generator interface {
	Name() string
	MinBars() int
	Generate(s *model.Strategy, m MarketSnapshot) (*model.TradingSignal, error)
}

var generators = map[string]Generator{}

// Register adds a generator under its name. Called from init functions;
// duplicate names are a programming error.
func Register(g Generator) {
	if _, exists := generators[g.Name()]; exists {
		panic(fmt.Sprintf("strategy generator %q registered twice", g.Name()))
	}
	generators[g.Name()] = g
}

// ForType resolves the generator for a strategy type.
func ForType(strategyType string) (Generator, error) {
	g, ok := generators[strategyType]
	if !ok {
		return nil, fmt.Errorf("unknown strategy type %q", strategyType)
	}
	return g, nil
}

// Types lists the registered generator names.
func Types() []string {
	out := make([]string, 0, len(generators))
	for name := range generators {
		out = append(out, name)
	}
	return out
}

func paramFloat(s *model.Strategy, key string, def float64) float64 {
	if s.Parameters == nil {
		return def
	}
	switch v := s.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
