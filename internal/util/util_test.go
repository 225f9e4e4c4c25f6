package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradesim/internal/domain"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func(context.Context) error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func(context.Context) error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	bad := errors.New("bad request")

	err := Retry(context.Background(), 5, 0, func(context.Context) error {
		attempts++
		return Permanent(bad)
	})

	if !errors.Is(err, bad) {
		t.Fatalf("Retry error = %v, want %v", err, bad)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func(context.Context) error {
		return errors.New("transient error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewBurstRateLimiter(60, 2)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.lastTime = now

	if !rl.TryAcquire() || !rl.TryAcquire() {
		t.Fatal("expected two burst tokens")
	}
	if rl.TryAcquire() {
		t.Fatal("expected the bucket to be empty")
	}

	now = now.Add(time.Second)
	if !rl.TryAcquire() {
		t.Error("expected a token after one second at 60/min")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want deadline exceeded", err)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "json").Debug("hello", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestTradingCalendarUS(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketUS)
	ny := cal.Location()

	// Tuesday 2024-01-02.
	open := time.Date(2024, 1, 2, 10, 0, 0, 0, ny)
	if !cal.IsMarketOpen(open) {
		t.Errorf("IsMarketOpen(%v) = false, want true", open)
	}
	if cal.IsMarketOpen(time.Date(2024, 1, 2, 16, 0, 0, 0, ny)) {
		t.Error("market should be closed at 16:00")
	}
	if cal.IsMarketOpen(time.Date(2024, 1, 6, 11, 0, 0, 0, ny)) {
		t.Error("market should be closed on Saturday")
	}

	fri := time.Date(2024, 1, 5, 17, 0, 0, 0, ny)
	want := time.Date(2024, 1, 8, 9, 30, 0, 0, ny)
	if got := cal.NextOpen(fri); !got.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", fri, got, want)
	}
	if got := cal.NextClose(open); !got.Equal(time.Date(2024, 1, 2, 16, 0, 0, 0, ny)) {
		t.Errorf("NextClose(%v) = %v", open, got)
	}
}

func TestTradingCalendarCNLunchBreak(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketCN)
	sh := cal.Location()

	if cal.IsMarketOpen(time.Date(2024, 1, 2, 12, 0, 0, 0, sh)) {
		t.Error("CN market should be closed over lunch")
	}
	lunch := time.Date(2024, 1, 2, 12, 0, 0, 0, sh)
	if got := cal.NextOpen(lunch); !got.Equal(time.Date(2024, 1, 2, 13, 0, 0, 0, sh)) {
		t.Errorf("NextOpen(lunch) = %v", got)
	}
}

func TestTradingCalendarSessionDate(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketUS)

	// 03:00 UTC on Jan 3 is still Jan 2 in New York.
	a := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC)
	if !cal.SameSession(a, b) {
		t.Error("expected both times on the same New York date")
	}
	c := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)
	if cal.SameSession(a, c) {
		t.Error("expected different New York dates")
	}
}
