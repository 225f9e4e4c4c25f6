package store

import (
	"time"

	"tradesim/internal/domain"
)

// Run statuses recorded in the journal.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunRecord summarises one simulation run. Money values are decimal strings.
type RunRecord struct {
	ID            string    `json:"id"`
	Strategy      string    `json:"strategy"`
	Params        string    `json:"params,omitempty"` // JSON object
	Market        string    `json:"market"`
	Symbols       []string  `json:"symbols"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Steps         int       `json:"steps"`
	BaseCurrency  string    `json:"base_currency"`
	InitialEquity string    `json:"initial_equity"`
	FinalEquity   string    `json:"final_equity"`
	TotalReturn   float64   `json:"total_return"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	TotalTrades   int       `json:"total_trades"`
	WinRate       float64   `json:"win_rate"`
	ProfitFactor  float64   `json:"profit_factor"`
}

// OrderRecord is the final state of one order placed during a run.
type OrderRecord struct {
	OrderID  int64     `json:"order_id"`
	ParentID int64     `json:"parent_id,omitempty"`
	Type     string    `json:"type"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side,omitempty"`
	Qty      string    `json:"qty,omitempty"`
	Limit    string    `json:"limit,omitempty"`
	Stop     string    `json:"stop,omitempty"`
	TIF      string    `json:"tif,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`
}

// TradeRecord is one execution booked on the run's account.
type TradeRecord struct {
	OrderID  int64     `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Currency string    `json:"currency"`
	Time     time.Time `json:"time"`
	Qty      string    `json:"qty"`
	Price    string    `json:"price"`
	Fee      string    `json:"fee"`
	PNL      string    `json:"pnl"`
}

// PositionRecord is an open position at the end of a run.
type PositionRecord struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Size     string `json:"size"`
	AvgPrice string `json:"avg_price"`
	MktPrice string `json:"mkt_price"`
}

// NewOrderRecords flattens state and, for composite orders, its legs.
// Legs carry their composite's id in ParentID and the top-level order's
// status and times.
func NewOrderRecords(state domain.OrderState) []OrderRecord {
	return appendOrderRecords(nil, state.Order, 0, state)
}

func appendOrderRecords(out []OrderRecord, o domain.Order, parent int64, state domain.OrderState) []OrderRecord {
	out = append(out, orderRecord(o, parent, state))
	for _, leg := range o.Legs {
		out = appendOrderRecords(out, leg, o.ID, state)
	}
	return out
}

func orderRecord(o domain.Order, parent int64, state domain.OrderState) OrderRecord {
	r := OrderRecord{
		OrderID:  o.ID,
		ParentID: parent,
		Type:     string(o.Type),
		Symbol:   o.Asset.Symbol,
		Tag:      o.Tag,
		Status:   string(state.Status),
		OpenedAt: state.OpenedAt,
		ClosedAt: state.ClosedAt,
	}
	if o.Single() {
		r.Side = string(o.Side())
		r.Qty = o.Qty.String()
		r.TIF = o.TIF.String()
		if !o.Limit.IsZero() {
			r.Limit = o.Limit.String()
		}
		if !o.Stop.IsZero() {
			r.Stop = o.Stop.String()
		}
	}
	return r
}

// NewTradeRecord converts a booked trade.
func NewTradeRecord(t domain.Trade) TradeRecord {
	return TradeRecord{
		OrderID:  t.OrderID,
		Symbol:   t.Asset.Symbol,
		Currency: string(t.Asset.Currency),
		Time:     t.Time,
		Qty:      t.Qty.String(),
		Price:    t.Price.String(),
		Fee:      t.Fee.String(),
		PNL:      t.PNL.String(),
	}
}

// NewPositionRecord converts an open position.
func NewPositionRecord(p domain.Position) PositionRecord {
	return PositionRecord{
		Symbol:   p.Asset.Symbol,
		Currency: string(p.Asset.Currency),
		Size:     p.Size.String(),
		AvgPrice: p.AvgPrice.String(),
		MktPrice: p.MktPrice.String(),
	}
}
