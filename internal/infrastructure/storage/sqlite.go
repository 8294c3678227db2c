package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/pivot_alert_bot/internal/domain"
)

// SQLiteStore persists delivered alerts and computed daily level sets.
// Both tables carry uniqueness keys so replays are harmless: alerts are
// INSERT OR IGNORE on (symbol, level_type, timestamp) and daily levels
// INSERT OR REPLACE on (symbol, date).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		level_type TEXT NOT NULL,
		level_value REAL NOT NULL,
		touch_price REAL NOT NULL,
		timestamp INTEGER NOT NULL,
		date_sent TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(symbol, level_type, timestamp)
	);
	CREATE TABLE IF NOT EXISTS daily_levels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		pivot REAL NOT NULL,
		tc REAL NOT NULL,
		bc REAL NOT NULL,
		r1 REAL NOT NULL,
		s1 REAL NOT NULL,
		source_ohlc TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(symbol, date)
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
	CREATE INDEX IF NOT EXISTS idx_alerts_date ON alerts(date_sent);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, symbol string, kind domain.LevelKind, levelValue, touchPrice float64, timestamp int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (symbol, level_type, level_value, touch_price, timestamp, date_sent)
		VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, string(kind), levelValue, touchPrice, timestamp,
		time.Unix(timestamp, 0).Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("save alert %s/%s: %w", symbol, kind, err)
	}
	return nil
}

func (s *SQLiteStore) SaveDailyLevels(ctx context.Context, rec *domain.DailyLevels) error {
	source, err := json.Marshal(rec.Source)
	if err != nil {
		return fmt.Errorf("encode source ohlc: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_levels (symbol, date, pivot, tc, bc, r1, s1, source_ohlc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Symbol, rec.Date,
		rec.Levels.Pivot, rec.Levels.TC, rec.Levels.BC, rec.Levels.R1, rec.Levels.S1,
		string(source))
	if err != nil {
		return fmt.Errorf("save daily levels %s/%s: %w", rec.Symbol, rec.Date, err)
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]*domain.StoredAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, level_type, level_value, touch_price, timestamp, date_sent
		FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.StoredAlert
	for rows.Next() {
		a := &domain.StoredAlert{}
		var kind string
		if err := rows.Scan(&a.ID, &a.Symbol, &kind, &a.LevelValue, &a.TouchPrice, &a.Timestamp, &a.DateSent); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		a.Kind = domain.LevelKind(kind)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetDailyLevels loads the stored level set for a symbol and date, or
// (nil, nil) when none exists.
func (s *SQLiteStore) GetDailyLevels(ctx context.Context, symbol, date string) (*domain.DailyLevels, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pivot, tc, bc, r1, s1, source_ohlc
		FROM daily_levels WHERE symbol = ? AND date = ?`, symbol, date)

	rec := &domain.DailyLevels{Symbol: symbol, Date: date}
	var source string
	err := row.Scan(&rec.Levels.Pivot, &rec.Levels.TC, &rec.Levels.BC,
		&rec.Levels.R1, &rec.Levels.S1, &source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily levels %s/%s: %w", symbol, date, err)
	}
	if err := json.Unmarshal([]byte(source), &rec.Source); err != nil {
		return nil, fmt.Errorf("decode source ohlc: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
