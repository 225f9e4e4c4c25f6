// Package feed supplies time-ordered price events to simulation runs.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradesim/internal/domain"
)

// Feed publishes price events in increasing time order. Play blocks until
// every event has been sent or ctx is done; it never closes out. A feed can
// be played any number of times.
type Feed interface {
	Play(ctx context.Context, out chan<- domain.Event) error
}

// RangeFeed is a Feed that can restrict playback to a timeframe itself.
type RangeFeed interface {
	Feed
	PlayRange(ctx context.Context, tf domain.Timeframe, out chan<- domain.Event) error
}

var _ RangeFeed = (*HistoricFeed)(nil)

// HistoricFeed is an in-memory timeline of price events. Actions added for
// the same instant are merged into one event.
type HistoricFeed struct {
	mu     sync.RWMutex
	events []domain.Event // sorted by Time, unique times
}

// NewHistoricFeed returns an empty feed.
func NewHistoricFeed() *HistoricFeed {
	return &HistoricFeed{}
}

// Add records actions at t.
func (f *HistoricFeed) Add(t time.Time, actions ...domain.PriceAction) {
	if len(actions) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	i := sort.Search(len(f.events), func(i int) bool { return !f.events[i].Time.Before(t) })
	if i < len(f.events) && f.events[i].Time.Equal(t) {
		f.events[i].Actions = append(f.events[i].Actions, actions...)
		return
	}
	ev := domain.NewEvent(t, append([]domain.PriceAction(nil), actions...)...)
	f.events = append(f.events, domain.Event{})
	copy(f.events[i+1:], f.events[i:])
	f.events[i] = ev
}

// Len returns the number of distinct event times.
func (f *HistoricFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// Timeline returns the event times in order.
func (f *HistoricFeed) Timeline() []time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]time.Time, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Time
	}
	return out
}

// Assets returns every asset seen by the feed, sorted by symbol.
func (f *HistoricFeed) Assets() []domain.Asset {
	f.mu.RLock()
	seen := make(map[domain.Asset]struct{})
	for _, ev := range f.events {
		for _, a := range ev.Actions {
			seen[a.Asset] = struct{}{}
		}
	}
	f.mu.RUnlock()

	out := make([]domain.Asset, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// Play sends every event.
func (f *HistoricFeed) Play(ctx context.Context, out chan<- domain.Event) error {
	return f.PlayRange(ctx, domain.Timeframe{}, out)
}

// PlayRange sends the events falling inside tf.
func (f *HistoricFeed) PlayRange(ctx context.Context, tf domain.Timeframe, out chan<- domain.Event) error {
	f.mu.RLock()
	events := make([]domain.Event, 0, len(f.events))
	for _, ev := range f.events {
		if tf.Contains(ev.Time) {
			ev.Actions = append([]domain.PriceAction(nil), ev.Actions...)
			events = append(events, ev)
		}
	}
	f.mu.RUnlock()

	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
