package market

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func seqCandles(startDay string, n int, seed float64) []Candle {
	start, _ := time.ParseInLocation("2006-01-02", startDay, time.UTC)
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		p := seed + float64(i)
		openMs := start.AddDate(0, 0, i).UnixMilli()
		out = append(out, Candle{
			OpenTime:  openMs,
			CloseTime: openMs + 86_400_000 - 1,
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p + 0.5,
			Volume:    1000 + float64(i),
		})
	}
	return out
}

type flakySource struct {
	series  []Candle
	failing bool
	stats   SourceStats
}

func (f *flakySource) FetchDaily(_ context.Context, symbol string, limit int) ([]Candle, error) {
	f.stats.Requests++
	if f.failing {
		f.stats.Failures++
		return nil, fmt.Errorf("连接被拒绝")
	}
	bars := f.series
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (f *flakySource) Name() string       { return "flaky" }
func (f *flakySource) Stats() SourceStats { return f.stats }
func (f *flakySource) Close() error       { return nil }

func TestValidateDaily(t *testing.T) {
	t.Run("Valid Series", func(t *testing.T) {
		assert.NoError(t, ValidateDaily(seqCandles("2026-08-03", 30, 100)))
	})

	t.Run("Negative Price", func(t *testing.T) {
		bars := seqCandles("2026-08-03", 5, 100)
		bars[2].Low = -3
		assert.ErrorContains(t, ValidateDaily(bars), "invalid price")
	})

	t.Run("High Below Low", func(t *testing.T) {
		bars := seqCandles("2026-08-03", 5, 100)
		bars[2].High, bars[2].Low = bars[2].Low, bars[2].High
		assert.ErrorContains(t, ValidateDaily(bars), "below low")
	})

	t.Run("Out Of Order", func(t *testing.T) {
		bars := seqCandles("2026-08-03", 5, 100)
		bars[3].OpenTime = bars[1].OpenTime
		assert.ErrorContains(t, ValidateDaily(bars), "not after")
	})

	t.Run("Duplicate Day", func(t *testing.T) {
		bars := seqCandles("2026-08-03", 5, 100)
		bars[3].OpenTime = bars[2].OpenTime + 1
		assert.ErrorContains(t, ValidateDaily(bars), "duplicate day")
	})

	t.Run("Negative Volume", func(t *testing.T) {
		bars := seqCandles("2026-08-03", 5, 100)
		bars[4].Volume = -1
		assert.ErrorContains(t, ValidateDaily(bars), "invalid volume")
	})
}

func TestCandleDateKey(t *testing.T) {
	day := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	c := Candle{OpenTime: day.UnixMilli()}
	assert.Equal(t, "2026-08-21", c.DateKey())
	// 日内时刻不影响交易日标识
	c.OpenTime = day.Add(9 * time.Hour).UnixMilli()
	assert.Equal(t, "2026-08-21", c.DateKey())
}

func TestBarCachePutGet(t *testing.T) {
	cache, err := NewBarCache(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("创建缓存失败: %v", err)
	}
	defer cache.Close()
	ctx := context.Background()

	bars := seqCandles("2026-08-03", 10, 100)
	assert.NoError(t, cache.Put(ctx, "7203.T", bars))

	t.Run("Get All", func(t *testing.T) {
		got, err := cache.GetThrough(ctx, "7203.T", "", 100)
		assert.NoError(t, err)
		assert.Equal(t, bars, got)
	})

	t.Run("Through Bound", func(t *testing.T) {
		got, err := cache.GetThrough(ctx, "7203.T", "2026-08-07", 100)
		assert.NoError(t, err)
		if assert.Len(t, got, 5) {
			assert.Equal(t, "2026-08-07", got[len(got)-1].DateKey())
		}
	})

	t.Run("Limit Keeps Most Recent", func(t *testing.T) {
		got, err := cache.GetThrough(ctx, "7203.T", "", 3)
		assert.NoError(t, err)
		if assert.Len(t, got, 3) {
			assert.Equal(t, bars[7:], got)
		}
	})

	t.Run("Upsert Overwrites", func(t *testing.T) {
		patched := bars[9]
		patched.Close = 999
		assert.NoError(t, cache.Put(ctx, "7203.T", []Candle{patched}))
		got, err := cache.GetThrough(ctx, "7203.T", "", 1)
		assert.NoError(t, err)
		if assert.Len(t, got, 1) {
			assert.InDelta(t, 999, got[0].Close, 1e-9)
		}
	})

	t.Run("Unknown Symbol Empty", func(t *testing.T) {
		got, err := cache.GetThrough(ctx, "0000.T", "", 10)
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestCachedSource(t *testing.T) {
	cache, err := NewBarCache(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("创建缓存失败: %v", err)
	}
	defer cache.Close()
	ctx := context.Background()

	inner := &flakySource{series: seqCandles("2026-08-03", 10, 100)}
	src := NewCachedSource(inner, cache)

	t.Run("Write Through", func(t *testing.T) {
		got, err := src.FetchDaily(ctx, "7203.T", 100)
		assert.NoError(t, err)
		assert.Len(t, got, 10)

		cached, err := cache.GetThrough(ctx, "7203.T", "", 100)
		assert.NoError(t, err)
		assert.Equal(t, got, cached)
	})

	t.Run("Fallback To Cache", func(t *testing.T) {
		inner.failing = true
		got, err := src.FetchDaily(ctx, "7203.T", 100)
		assert.NoError(t, err)
		assert.Len(t, got, 10)
	})

	t.Run("Fail Without Cache Hit", func(t *testing.T) {
		inner.failing = true
		_, err := src.FetchDaily(ctx, "9999.T", 100)
		assert.Error(t, err)
	})

	t.Run("Delegates Identity", func(t *testing.T) {
		assert.Equal(t, "flaky", src.Name())
		assert.NotZero(t, src.Stats().Requests)
	})
}
