package engine

import (
	"github.com/shopspring/decimal"
)

// Metrics summarises the performance of a run.
type Metrics struct {
	TotalReturn  float64
	MaxDrawdown  float64
	TotalTrades  int
	WinRate      float64 // of trades that realized a profit or loss
	ProfitFactor float64 // gross profit / gross loss, 0 without losses
}

// ComputeMetrics derives Metrics from a finished run. Values are in the
// account base currency; trade PNL is counted net of fees.
func ComputeMetrics(res *RunResult) Metrics {
	var m Metrics
	if res == nil {
		return m
	}
	m.TotalTrades = len(res.Final.Trades)

	start := res.Initial.Equity.Value
	if start.IsPositive() {
		m.TotalReturn = res.Final.Equity.Value.Sub(start).Div(start).InexactFloat64()
	}

	peak := start
	maxDD := decimal.Zero
	for _, p := range res.Equity {
		v := p.Equity.Value
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsPositive() {
			if dd := peak.Sub(v).Div(peak); dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	m.MaxDrawdown = maxDD.InexactFloat64()

	wins, closing := 0, 0
	profit, loss := decimal.Zero, decimal.Zero
	for _, tr := range res.Final.Trades {
		if tr.PNL.IsZero() {
			continue
		}
		closing++
		net := tr.PNL.Sub(tr.Fee)
		if net.IsPositive() {
			wins++
			profit = profit.Add(net)
		} else {
			loss = loss.Add(net.Neg())
		}
	}
	if closing > 0 {
		m.WinRate = float64(wins) / float64(closing)
	}
	if loss.IsPositive() {
		m.ProfitFactor = profit.Div(loss).InexactFloat64()
	}
	return m
}
