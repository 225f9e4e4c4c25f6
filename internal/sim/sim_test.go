package sim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

var (
	abc = domain.NewStock("ABC", domain.USD)
	xyz = domain.NewStock("XYZ", domain.USD)

	// 10:00 New York time on a Tuesday.
	t0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func tick(n int) time.Time { return t0.Add(time.Duration(n) * time.Minute) }

func tradeAt(t time.Time, price int64) domain.Event {
	return domain.NewEvent(t, domain.NewTradePrice(abc, dec(price), decimal.Zero))
}

func barAt(t time.Time, low, high, close, volume int64) domain.Event {
	return domain.NewEvent(t, domain.NewPriceBar(abc, dec(close), dec(high), dec(low), dec(close), dec(volume)))
}

func mustAdd(t *testing.T, e *ExecutionEngine, orders ...domain.Order) {
	t.Helper()
	for _, o := range orders {
		if err := e.Add(o); err != nil {
			t.Fatalf("Add(%d): %v", o.ID, err)
		}
	}
}

func mustExecute(t *testing.T, e *ExecutionEngine, ev domain.Event) []Execution {
	t.Helper()
	execs, err := e.Execute(ev)
	if err != nil {
		t.Fatalf("Execute(%v): %v", ev.Time, err)
	}
	return execs
}

func stateOf(t *testing.T, e *ExecutionEngine, id int64) domain.OrderState {
	t.Helper()
	cmd, ok := e.Command(id)
	if !ok {
		t.Fatalf("order %d not in engine", id)
	}
	return cmd.State()
}

func filledOf(t *testing.T, e *ExecutionEngine, id int64) decimal.Decimal {
	t.Helper()
	cmd, ok := e.Command(id)
	if !ok {
		t.Fatalf("order %d not in engine", id)
	}
	return cmd.Filled()
}

func wantStatus(t *testing.T, e *ExecutionEngine, id int64, want domain.OrderStatus) {
	t.Helper()
	if got := stateOf(t, e, id).Status; got != want {
		t.Errorf("order %d status = %s, want %s", id, got, want)
	}
}

func wantFill(t *testing.T, execs []Execution, qty, price int64) {
	t.Helper()
	if len(execs) != 1 {
		t.Fatalf("got %d executions, want 1", len(execs))
	}
	if !execs[0].Qty.Equal(dec(qty)) || !execs[0].Price.Equal(dec(price)) {
		t.Errorf("execution = %s @ %s, want %d @ %d", execs[0].Qty, execs[0].Price, qty, price)
	}
}
