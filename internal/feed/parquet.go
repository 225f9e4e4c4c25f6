package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/store"
)

// maxTime bounds open-ended reads; ParquetStore walks years, not days.
var maxTime = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// LoadParquet reads the daily bars of assets from bars into a new
// HistoricFeed. An asset without data is logged and skipped.
func LoadParquet(ctx context.Context, bars store.BarStore, market domain.Market, assets []domain.Asset, tf domain.Timeframe) (*HistoricFeed, error) {
	log := slog.Default().With("component", "feed")
	start, end := tf.Start, tf.End
	if start.IsZero() {
		start = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = maxTime
	}

	f := NewHistoricFeed()
	for _, asset := range assets {
		got, err := bars.ReadBars(ctx, asset.Symbol, string(market), start, end)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", asset.Symbol, err)
		}
		if len(got) == 0 {
			log.Warn("no bars", "symbol", asset.Symbol, "market", market)
			continue
		}
		n := 0
		for _, b := range got {
			if !tf.Contains(b.Timestamp) {
				continue
			}
			f.Add(b.Timestamp, b.Action(asset))
			n++
		}
		log.Debug("loaded bars", "symbol", asset.Symbol, "bars", n)
	}
	return f, nil
}
