package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// BarCache 以 sqlite 落地日线。在线拉取成功后写穿缓存，
// 数据源不可用或离线重放时直接从本地命中。
type BarCache struct {
	mu sync.Mutex
	db *sql.DB
}

func NewBarCache(path string) (*BarCache, error) {
	if path == "" {
		return nil, fmt.Errorf("bar cache path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureBarSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &BarCache{db: db}, nil
}

func (c *BarCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func ensureBarSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS daily_bars (
		symbol TEXT NOT NULL,
		day TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		trades INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(symbol, day)
	);`)
	return err
}

// Put 以 upsert 写入整段日线。
func (c *BarCache) Put(ctx context.Context, symbol string, bars []Candle) error {
	if len(bars) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("bar cache closed")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_bars
		(symbol, day, open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, day) DO UPDATE SET
			open_time=excluded.open_time, close_time=excluded.close_time,
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume, trades=excluded.trades`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.DateKey(), b.OpenTime, b.CloseTime,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.Trades); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetThrough 返回 day<=through 的最近 limit 根日线，按时间升序。
// through 为空表示不设上界。
func (c *BarCache) GetThrough(ctx context.Context, symbol, through string, limit int) ([]Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, fmt.Errorf("bar cache closed")
	}
	query := `SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM daily_bars WHERE symbol = ?`
	args := []any{symbol}
	if through != "" {
		query += ` AND day <= ?`
		args = append(args, through)
	}
	query += ` ORDER BY day DESC LIMIT ?`
	args = append(args, limit)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		var b Candle
		if err := rows.Scan(&b.OpenTime, &b.CloseTime, &b.Open, &b.High, &b.Low,
			&b.Close, &b.Volume, &b.Trades); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 查询按日期倒序取最近 N 根，这里翻转回升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
