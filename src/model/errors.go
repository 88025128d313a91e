package model

import "errors"

var (
	ErrDuplicateStrategy  = errors.New("strategy already registered")
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrInvalidTransition  = errors.New("invalid strategy status transition")
	ErrConnectionNotFound = errors.New("exchange connection not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrUnknownRiskLimit   = errors.New("unknown risk limit")
	ErrEmergencyStop      = errors.New("emergency stop active")
)
