package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradesim/internal/domain"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

// BarClient is the slice of the Alpaca market-data client the fetcher uses.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

var _ BarClient = (*marketdata.Client)(nil)

// NewAlpacaClient returns a market-data client. An empty dataURL uses the
// Alpaca default.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// AlpacaFetcher downloads daily bars from Alpaca into a BarStore.
type AlpacaFetcher struct {
	client      BarClient
	dst         store.BarStore
	limiter     *util.RateLimiter
	batchSize   int
	feed        marketdata.Feed
	maxAttempts int
	retryDelay  time.Duration
	log         *slog.Logger
}

// FetchOption configures an AlpacaFetcher.
type FetchOption func(*AlpacaFetcher)

// WithBatchSize sets the number of symbols per request.
func WithBatchSize(n int) FetchOption {
	return func(f *AlpacaFetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithRequestsPerMinute sets the request rate limit.
func WithRequestsPerMinute(n int) FetchOption {
	return func(f *AlpacaFetcher) {
		if n > 0 {
			f.limiter = util.NewRateLimiter(n)
		}
	}
}

// WithDataFeed selects the Alpaca data feed ("sip" or "iex").
func WithDataFeed(feed string) FetchOption {
	return func(f *AlpacaFetcher) {
		if feed != "" {
			f.feed = marketdata.Feed(feed)
		}
	}
}

// WithRetry sets the attempt count and base back-off of failed requests.
func WithRetry(maxAttempts int, baseDelay time.Duration) FetchOption {
	return func(f *AlpacaFetcher) {
		f.maxAttempts = maxAttempts
		f.retryDelay = baseDelay
	}
}

// NewAlpacaFetcher returns a fetcher writing to dst.
func NewAlpacaFetcher(client BarClient, dst store.BarStore, opts ...FetchOption) *AlpacaFetcher {
	f := &AlpacaFetcher{
		client:      client,
		dst:         dst,
		limiter:     util.NewRateLimiter(200),
		batchSize:   100,
		feed:        "sip",
		maxAttempts: 3,
		retryDelay:  time.Second,
		log:         slog.Default().With("component", "alpaca-fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads daily bars for symbols in [start, end] and stores them
// under the US market. It returns the number of bars written.
func (f *AlpacaFetcher) Fetch(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	total := 0
	for lo := 0; lo < len(symbols); lo += f.batchSize {
		hi := min(lo+f.batchSize, len(symbols))
		batch := symbols[lo:hi]

		if err := f.limiter.Wait(ctx); err != nil {
			return total, err
		}
		var bars []domain.Bar
		err := util.Retry(ctx, f.maxAttempts, f.retryDelay, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return util.Permanent(err)
			}
			multi, err := f.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     start,
				End:       end,
				Feed:      f.feed,
			})
			if err != nil {
				return fmt.Errorf("GetMultiBars: %w", err)
			}
			bars = convertBars(multi)
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("fetching %s..%s: %w", batch[0], batch[len(batch)-1], err)
		}
		if err := f.dst.WriteBars(ctx, string(domain.MarketUS), bars); err != nil {
			return total, fmt.Errorf("storing bars: %w", err)
		}
		total += len(bars)
		f.log.Info("batch stored", "symbols", len(batch), "bars", len(bars))
	}
	return total, nil
}

func convertBars(multi map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multi {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended (after 20:05 ET, once extended-hours data has settled), using
// the Alpaca trading calendar.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	et := util.NewTradingCalendar(domain.MarketUS).Location()
	now := time.Now().In(et)

	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	days := make([]string, len(calendar))
	for i, d := range calendar {
		days[i] = d.Date
	}
	return latestFinished(days, now)
}

// latestFinished picks the last day in days (YYYY-MM-DD, ascending) that has
// finished as of now.
func latestFinished(days []string, now time.Time) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}
	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, now.Location())

	for i := len(days) - 1; i >= 0; i-- {
		if days[i] == today {
			if now.After(cutoff) {
				return time.Parse("2006-01-02", days[i])
			}
			continue
		}
		day, err := time.Parse("2006-01-02", days[i])
		if err != nil {
			continue
		}
		if day.Before(now) {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
