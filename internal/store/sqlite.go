package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunJournal = (*SQLiteStore)(nil)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE runs (
		id             TEXT PRIMARY KEY,
		strategy       TEXT NOT NULL,
		params         TEXT NOT NULL DEFAULT '',
		market         TEXT NOT NULL DEFAULT '',
		symbols        TEXT NOT NULL DEFAULT '',
		start_ns       INTEGER NOT NULL DEFAULT 0,
		end_ns         INTEGER NOT NULL DEFAULT 0,
		started_at_ns  INTEGER NOT NULL DEFAULT 0,
		finished_at_ns INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL,
		error          TEXT NOT NULL DEFAULT '',
		steps          INTEGER NOT NULL DEFAULT 0,
		base_currency  TEXT NOT NULL DEFAULT '',
		initial_equity TEXT NOT NULL DEFAULT '0',
		final_equity   TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE orders (
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		order_id     INTEGER NOT NULL,
		parent_id    INTEGER NOT NULL DEFAULT 0,
		type         TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		side         TEXT NOT NULL DEFAULT '',
		qty          TEXT NOT NULL DEFAULT '',
		limit_price  TEXT NOT NULL DEFAULT '',
		stop_price   TEXT NOT NULL DEFAULT '',
		tif          TEXT NOT NULL DEFAULT '',
		tag          TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		opened_at_ns INTEGER NOT NULL DEFAULT 0,
		closed_at_ns INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, order_id)
	)`,
	`CREATE TABLE trades (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		symbol   TEXT NOT NULL,
		currency TEXT NOT NULL,
		time_ns  INTEGER NOT NULL,
		qty      TEXT NOT NULL,
		price    TEXT NOT NULL,
		fee      TEXT NOT NULL,
		pnl      TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE positions (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		symbol    TEXT NOT NULL,
		currency  TEXT NOT NULL,
		size      TEXT NOT NULL,
		avg_price TEXT NOT NULL,
		mkt_price TEXT NOT NULL,
		PRIMARY KEY (run_id, symbol, currency)
	)`,
	`ALTER TABLE runs ADD COLUMN total_return REAL NOT NULL DEFAULT 0;
	 ALTER TABLE runs ADD COLUMN max_drawdown REAL NOT NULL DEFAULT 0;
	 ALTER TABLE runs ADD COLUMN total_trades INTEGER NOT NULL DEFAULT 0;
	 ALTER TABLE runs ADD COLUMN win_rate REAL NOT NULL DEFAULT 0;
	 ALTER TABLE runs ADD COLUMN profit_factor REAL NOT NULL DEFAULT 0`,
	`CREATE INDEX idx_runs_started ON runs(started_at_ns DESC)`,
}

// SQLiteStore implements RunJournal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, brings its
// schema up to date and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers from parallel backtests.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion returns the number of applied migrations.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		err := s.tx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range strings.Split(migrations[i], ";") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, i+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

const runColumns = `id, strategy, params, market, symbols, start_ns, end_ns, started_at_ns,
	finished_at_ns, status, error, steps, base_currency, initial_equity, final_equity,
	total_return, max_drawdown, total_trades, win_rate, profit_factor`

// SaveRun inserts or replaces a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, r RunRecord) error {
	if r.ID == "" {
		return errors.New("store: run without id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strategy = excluded.strategy, params = excluded.params, market = excluded.market,
			symbols = excluded.symbols, start_ns = excluded.start_ns, end_ns = excluded.end_ns,
			started_at_ns = excluded.started_at_ns, finished_at_ns = excluded.finished_at_ns,
			status = excluded.status, error = excluded.error, steps = excluded.steps,
			base_currency = excluded.base_currency, initial_equity = excluded.initial_equity,
			final_equity = excluded.final_equity, total_return = excluded.total_return,
			max_drawdown = excluded.max_drawdown, total_trades = excluded.total_trades,
			win_rate = excluded.win_rate, profit_factor = excluded.profit_factor`,
		r.ID, r.Strategy, r.Params, r.Market, strings.Join(r.Symbols, ","),
		toNanos(r.Start), toNanos(r.End), toNanos(r.StartedAt), toNanos(r.FinishedAt),
		r.Status, r.Error, r.Steps, r.BaseCurrency, r.InitialEquity, r.FinalEquity,
		r.TotalReturn, r.MaxDrawdown, r.TotalTrades, r.WinRate, r.ProfitFactor,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun returns the run with the given id or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns the most recently started runs, up to limit. A
// non-positive limit returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at_ns DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r                                  RunRecord
		symbols                            string
		start, end, startedAt, finishedAt int64
	)
	err := sc.Scan(&r.ID, &r.Strategy, &r.Params, &r.Market, &symbols, &start, &end,
		&startedAt, &finishedAt, &r.Status, &r.Error, &r.Steps, &r.BaseCurrency,
		&r.InitialEquity, &r.FinalEquity, &r.TotalReturn, &r.MaxDrawdown, &r.TotalTrades,
		&r.WinRate, &r.ProfitFactor)
	if err != nil {
		return RunRecord{}, err
	}
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	r.Start = fromNanos(start)
	r.End = fromNanos(end)
	r.StartedAt = fromNanos(startedAt)
	r.FinishedAt = fromNanos(finishedAt)
	return r, nil
}

// ---------------------------------------------------------------------------
// Orders, trades, positions
// ---------------------------------------------------------------------------

// SaveOrders replaces the orders journaled for runID.
func (s *SQLiteStore) SaveOrders(ctx context.Context, runID string, orders []OrderRecord) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders (run_id, order_id, parent_id, type,
			symbol, side, qty, limit_price, stop_price, tif, tag, status, opened_at_ns, closed_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range orders {
			_, err := stmt.ExecContext(ctx, runID, o.OrderID, o.ParentID, o.Type, o.Symbol, o.Side,
				o.Qty, o.Limit, o.Stop, o.TIF, o.Tag, o.Status, toNanos(o.OpenedAt), toNanos(o.ClosedAt))
			if err != nil {
				return fmt.Errorf("saving order %d of run %s: %w", o.OrderID, runID, err)
			}
		}
		return nil
	})
}

// ListOrders returns the orders of runID ordered by id.
func (s *SQLiteStore) ListOrders(ctx context.Context, runID string) ([]OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, parent_id, type, symbol, side, qty,
		limit_price, stop_price, tif, tag, status, opened_at_ns, closed_at_ns
		FROM orders WHERE run_id = ? ORDER BY order_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var (
			o              OrderRecord
			opened, closed int64
		)
		if err := rows.Scan(&o.OrderID, &o.ParentID, &o.Type, &o.Symbol, &o.Side, &o.Qty,
			&o.Limit, &o.Stop, &o.TIF, &o.Tag, &o.Status, &opened, &closed); err != nil {
			return nil, err
		}
		o.OpenedAt = fromNanos(opened)
		o.ClosedAt = fromNanos(closed)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveTrades replaces the trades journaled for runID, keeping their order.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID string, trades []TradeRecord) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades (run_id, seq, order_id, symbol,
			currency, time_ns, qty, price, fee, pnl) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, t := range trades {
			_, err := stmt.ExecContext(ctx, runID, i, t.OrderID, t.Symbol, t.Currency,
				toNanos(t.Time), t.Qty, t.Price, t.Fee, t.PNL)
			if err != nil {
				return fmt.Errorf("saving trade %d of run %s: %w", i, runID, err)
			}
		}
		return nil
	})
}

// ListTrades returns the trades of runID in booking order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, symbol, currency, time_ns, qty, price,
		fee, pnl FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			t  TradeRecord
			ts int64
		)
		if err := rows.Scan(&t.OrderID, &t.Symbol, &t.Currency, &ts, &t.Qty, &t.Price,
			&t.Fee, &t.PNL); err != nil {
			return nil, err
		}
		t.Time = fromNanos(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SavePositions replaces the positions journaled for runID.
func (s *SQLiteStore) SavePositions(ctx context.Context, runID string, positions []PositionRecord) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, p := range positions {
			_, err := tx.ExecContext(ctx, `INSERT INTO positions (run_id, symbol, currency, size,
				avg_price, mkt_price) VALUES (?, ?, ?, ?, ?, ?)`,
				runID, p.Symbol, p.Currency, p.Size, p.AvgPrice, p.MktPrice)
			if err != nil {
				return fmt.Errorf("saving position %s of run %s: %w", p.Symbol, runID, err)
			}
		}
		return nil
	})
}

// ListPositions returns the positions of runID ordered by symbol.
func (s *SQLiteStore) ListPositions(ctx context.Context, runID string) ([]PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, currency, size, avg_price, mkt_price
		FROM positions WHERE run_id = ? ORDER BY symbol, currency`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(&p.Symbol, &p.Currency, &p.Size, &p.AvgPrice, &p.MktPrice); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
