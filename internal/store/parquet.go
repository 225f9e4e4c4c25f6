package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradesim/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk. It also
// exports the fills of finished runs for offline analysis.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// FillRecord is the Parquet schema for exported run fills. Decimal columns
// are stored as strings to keep them exact.
type FillRecord struct {
	RunID     string `parquet:"run_id"`
	OrderID   int64  `parquet:"order_id"`
	Symbol    string `parquet:"symbol"`
	Currency  string `parquet:"currency"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Qty       string `parquet:"qty"`
	Price     string `parquet:"price"`
	Fee       string `parquet:"fee"`
	PNL       string `parquet:"pnl"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk are merged; incoming bars win on equal timestamps.
func (s *ParquetStore) WriteBars(ctx context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(k.symbol, market, time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC))

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range, ordered by timestamp.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Run fill export
// ---------------------------------------------------------------------------

// WriteFills replaces the exported fills of run runID.
func (s *ParquetStore) WriteFills(runID string, trades []TradeRecord) error {
	records := make([]FillRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, FillRecord{
			RunID:     runID,
			OrderID:   t.OrderID,
			Symbol:    t.Symbol,
			Currency:  t.Currency,
			Timestamp: t.Time.UnixMilli(),
			Qty:       t.Qty,
			Price:     t.Price,
			Fee:       t.Fee,
			PNL:       t.PNL,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	if err := writeParquetFile(s.fillPath(runID), records); err != nil {
		return fmt.Errorf("writing fills for run %s: %w", runID, err)
	}
	return nil
}

// ReadFills returns the exported fills of run runID.
func (s *ParquetStore) ReadFills(runID string) ([]TradeRecord, error) {
	records, err := readParquetFile[FillRecord](s.fillPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fills for run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}
	out := make([]TradeRecord, 0, len(records))
	for _, r := range records {
		out = append(out, TradeRecord{
			OrderID:  r.OrderID,
			Symbol:   r.Symbol,
			Currency: r.Currency,
			Time:     time.UnixMilli(r.Timestamp).UTC(),
			Qty:      r.Qty,
			Price:    r.Price,
			Fee:      r.Fee,
			PNL:      r.PNL,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	year := fmt.Sprintf("%d", t.Year())
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), year+".parquet")
}

// fillPath returns the filesystem path for a run's exported fills.
// Layout: <dataDir>/runs/<runID>/fills.parquet
func (s *ParquetStore) fillPath(runID string) string {
	return filepath.Join(s.DataDir, "runs", runID, "fills.parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
