package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"eth-scalper/internal/logger"
	"eth-scalper/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_state (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	balance            REAL    NOT NULL,
	profit             REAL    NOT NULL,
	positions          TEXT    NOT NULL,
	last_action        TEXT    NOT NULL DEFAULT '',
	consecutive_losses INTEGER NOT NULL DEFAULT 0,
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	ts          INTEGER NOT NULL,
	action      TEXT    NOT NULL,
	entry       REAL    NOT NULL,
	exit_price  REAL    NOT NULL DEFAULT 0,
	qty         INTEGER NOT NULL,
	lev         INTEGER NOT NULL,
	exit_pnl    REAL    NOT NULL DEFAULT 0,
	outcome     TEXT    NOT NULL DEFAULT '',
	exit_reason TEXT    NOT NULL DEFAULT '',
	confidence  REAL    NOT NULL DEFAULT 0,
	features    TEXT    NOT NULL DEFAULT '{}',
	order_ack   TEXT    NOT NULL DEFAULT ''
);`

// SQLiteStore keeps the aggregate in a single row and the trade history in an
// append-only table keyed by trade id.
type SQLiteStore struct {
	db *sql.DB

	mu sync.Mutex
	// trades already in the table; the history is append-only so only the tail is inserted
	journaled int
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite journal: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) types.EngineState {
	st, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn(ctx, "Journal unreadable, starting fresh", "error", err)
		}
		st = types.DefaultState()
		if err := s.Save(ctx, st); err != nil {
			logger.Warn(ctx, "Failed to write default state", "error", err)
		}
	}
	return st
}

func (s *SQLiteStore) load(ctx context.Context) (types.EngineState, error) {
	var (
		st        types.EngineState
		positions string
		action    string
		updated   int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT balance, profit, positions, last_action, consecutive_losses, updated_at FROM engine_state WHERE id = 1`)
	if err := row.Scan(&st.Balance, &st.Profit, &positions, &action, &st.ConsecutiveLosses, &updated); err != nil {
		return st, err
	}
	st.LastAction = types.Action(action)
	if err := json.Unmarshal([]byte(positions), &st.Positions); err != nil {
		return st, fmt.Errorf("decode positions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, action, entry, exit_price, qty, lev, exit_pnl, outcome, exit_reason, confidence, features, order_ack
		 FROM trades ORDER BY seq`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t        types.Trade
			ts       int64
			act, out string
			feats    string
		)
		if err := rows.Scan(&t.ID, &ts, &act, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.Leverage,
			&t.ExitPnL, &out, &t.ExitReason, &t.Confidence, &feats, &t.OrderAck); err != nil {
			return st, err
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		t.Action = types.Action(act)
		t.Outcome = types.Outcome(out)
		if err := json.Unmarshal([]byte(feats), &t.Features); err != nil {
			return st, fmt.Errorf("decode features of %s: %w", t.ID, err)
		}
		st.Trades = append(st.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	s.mu.Lock()
	s.journaled = len(st.Trades)
	s.mu.Unlock()
	return normalize(st), nil
}

// Save upserts the aggregate row and inserts trades not yet journaled, in one transaction.
// Trades are immutable once written, so existing ids are skipped.
func (s *SQLiteStore) Save(ctx context.Context, st types.EngineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st = normalize(st)
	start := s.journaled
	if start > len(st.Trades) {
		// history shorter than what was written: not an append, re-check everything
		start = 0
	}
	positions, err := json.Marshal(st.Positions)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO engine_state (id, balance, profit, positions, last_action, consecutive_losses, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   balance = excluded.balance,
		   profit = excluded.profit,
		   positions = excluded.positions,
		   last_action = excluded.last_action,
		   consecutive_losses = excluded.consecutive_losses,
		   updated_at = excluded.updated_at`,
		st.Balance, st.Profit, string(positions), string(st.LastAction), st.ConsecutiveLosses, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO trades (id, ts, action, entry, exit_price, qty, lev, exit_pnl, outcome, exit_reason, confidence, features, order_ack)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := start; i < len(st.Trades); i++ {
		t := st.Trades[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("seq-%d-%d", t.Timestamp.UnixMilli(), i)
		}
		feats, err := json.Marshal(t.Features)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Timestamp.UnixMilli(), string(t.Action), t.EntryPrice, t.ExitPrice,
			t.Quantity, t.Leverage, t.ExitPnL, string(t.Outcome), t.ExitReason, t.Confidence, string(feats), t.OrderAck); err != nil {
			return fmt.Errorf("journal trade %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.journaled = len(st.Trades)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
