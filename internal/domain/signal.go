package domain

import "time"

// SignalType is the trading intent a strategy expresses for an asset.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// Signal is a strategy's recommendation for a single asset at one event.
type Signal struct {
	ID         int64
	StrategyID string
	Asset      Asset
	Type       SignalType
	Strength   float64 // 0..1
	Metadata   map[string]string
	CreatedAt  time.Time
}
