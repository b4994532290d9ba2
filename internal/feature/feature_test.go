package feature

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/universe"
)

// trendCandles 生成 n 根温和上行的连续日线，避免指标预热区出现退化值。
func trendCandles(n int) []market.Candle {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		base := 100 + 0.5*float64(i) + 2*math.Sin(float64(i)/5)
		openMs := start.AddDate(0, 0, i).UnixMilli()
		out = append(out, market.Candle{
			OpenTime:  openMs,
			CloseTime: openMs + 86_400_000 - 1,
			Open:      base - 0.2,
			High:      base + 0.8,
			Low:       base - 0.9,
			Close:     base,
			Volume:    1e6 + 1e5*math.Cos(float64(i)/3),
		})
	}
	return out
}

func TestBuildDaily(t *testing.T) {
	candles := trendCandles(80)
	bundle, err := BuildDaily("7203.T", candles)
	assert.NoError(t, err)
	if bundle == nil {
		t.Fatalf("特征包为空")
	}

	view, err := DailyView(bundle)
	assert.NoError(t, err)
	assert.NoError(t, view.Complete())
	assert.Equal(t, "7203.T", view.Symbol())
	assert.Equal(t, candles[len(candles)-1].DateKey(), view.AsOf())

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	t.Run("Price Passthrough", func(t *testing.T) {
		got, ok := view.Close()
		assert.True(t, ok)
		assert.InDelta(t, last.Close, got, 1e-9)
		ret, ok := view.Get(KeyRet1D)
		assert.True(t, ok)
		assert.InDelta(t, last.Close/prev.Close-1, ret, 1e-9)
	})

	t.Run("Rolling Windows", func(t *testing.T) {
		hh, ok := view.HH20()
		assert.True(t, ok)
		wantHH := 0.0
		for _, c := range candles[len(candles)-20:] {
			wantHH = math.Max(wantHH, c.High)
		}
		assert.InDelta(t, wantHH, hh, 1e-9)

		closeToHH, ok := view.CloseToHH20()
		assert.True(t, ok)
		assert.InDelta(t, last.Close/wantHH-1, closeToHH, 1e-9)

		var volSum float64
		for _, c := range candles[len(candles)-20:] {
			volSum += c.Volume
		}
		vratio, ok := view.VRatio20()
		assert.True(t, ok)
		assert.InDelta(t, last.Volume/(volSum/20), vratio, 1e-9)
	})

	t.Run("Indicators In Range", func(t *testing.T) {
		rsi, ok := view.RSI14()
		assert.True(t, ok)
		assert.Greater(t, rsi, 0.0)
		assert.Less(t, rsi, 100.0)

		atr, ok := view.ATR14()
		assert.True(t, ok)
		assert.Greater(t, atr, 0.0)

		vol, ok := view.Get(KeyVol20D)
		assert.True(t, ok)
		assert.Greater(t, vol, 0.0)

		// 上行序列里短均线应在长均线之上
		sma20, _ := view.SMA20()
		sma50, _ := view.SMA50()
		assert.Greater(t, sma20, sma50)
	})
}

func TestBuildDailyDeterministic(t *testing.T) {
	candles := trendCandles(90)
	b1, err := BuildDaily("6758.T", candles)
	assert.NoError(t, err)
	b2, err := BuildDaily("6758.T", candles)
	assert.NoError(t, err)

	assert.Equal(t, b1.NumKeys(), b2.NumKeys())
	for _, key := range b1.NumKeys() {
		v1, _ := b1.Num(key)
		v2, _ := b2.Num(key)
		assert.Equal(t, v1, v2, "键 %s 两次结果不一致", key)
	}
}

func TestBuildDailyRejectsBadInput(t *testing.T) {
	t.Run("Too Few Bars", func(t *testing.T) {
		_, err := BuildDaily("7203.T", trendCandles(MinDailyBars-1))
		assert.ErrorContains(t, err, "need 60")
	})

	t.Run("Invalid Price", func(t *testing.T) {
		candles := trendCandles(80)
		candles[40].Close = 0
		_, err := BuildDaily("7203.T", candles)
		assert.ErrorContains(t, err, "invalid price")
	})

	t.Run("Duplicate Day", func(t *testing.T) {
		candles := trendCandles(80)
		candles[41].OpenTime = candles[40].OpenTime + 1
		_, err := BuildDaily("7203.T", candles)
		assert.ErrorContains(t, err, "duplicate day")
	})
}

func TestViewProvenanceGuard(t *testing.T) {
	static := NewBundle(ProvenanceStatic, "7203.T", "2026-08-21", map[string]float64{KeyLotSize: 100}, nil)

	_, err := DailyView(static)
	var mismatch *MismatchError
	if assert.ErrorAs(t, err, &mismatch) {
		assert.Equal(t, ProvenanceDaily, mismatch.Want)
		assert.Equal(t, ProvenanceStatic, mismatch.Got)
	}

	_, err = FundamentalView(static)
	assert.ErrorAs(t, err, &mismatch)

	_, err = DailyView(nil)
	assert.Error(t, err)
}

func TestBuildStatic(t *testing.T) {
	entry := universe.Entry{
		Symbol:            "7203.T",
		Sector:            "Autos",
		LotSize:           100,
		SharesOutstanding: 1.36e10,
	}
	candles := trendCandles(40)
	last := candles[len(candles)-1]

	bundle := BuildStatic(entry, candles)
	view, err := StaticView(bundle)
	assert.NoError(t, err)

	mcap, ok := view.MarketCap()
	assert.True(t, ok)
	assert.InDelta(t, entry.SharesOutstanding*last.Close, mcap, 1e-3)

	lot, ok := view.LotSize()
	assert.True(t, ok)
	assert.Equal(t, 100.0, lot)

	sector, ok := view.Sector()
	assert.True(t, ok)
	assert.Equal(t, "Autos", sector)

	turnover, ok := view.AvgTurnover20()
	assert.True(t, ok)
	assert.Greater(t, turnover, 0.0)

	t.Run("Absent When Data Missing", func(t *testing.T) {
		sparse := BuildStatic(universe.Entry{Symbol: "X"}, trendCandles(5))
		view, err := StaticView(sparse)
		assert.NoError(t, err)
		_, ok := view.MarketCap()
		assert.False(t, ok)
		_, ok = view.AvgTurnover20()
		assert.False(t, ok)
		_, ok = view.Sector()
		assert.False(t, ok)
	})
}

func TestLoadFundamentals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jp.yaml")
	body := `
market: JP
symbols:
  7203.T: {revenue_growth_yoy: 0.05, operating_margin: 0.11, roe: 0.12, leverage: 1.1}
  6758.T: {roe: 0.18}
  9999.T: {}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写基本面文件失败: %v", err)
	}

	got, err := LoadFundamentals("JP", path, "2026-08-21")
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	view, err := FundamentalView(got["7203.T"])
	assert.NoError(t, err)
	growth, ok := view.RevenueGrowthYoY()
	assert.True(t, ok)
	assert.InDelta(t, 0.05, growth, 1e-9)
	lev, ok := view.Leverage()
	assert.True(t, ok)
	assert.InDelta(t, 1.1, lev, 1e-9)

	t.Run("Partial Row", func(t *testing.T) {
		view, err := FundamentalView(got["6758.T"])
		assert.NoError(t, err)
		roe, ok := view.ROE()
		assert.True(t, ok)
		assert.InDelta(t, 0.18, roe, 1e-9)
		_, ok = view.OperatingMargin()
		assert.False(t, ok)
	})

	t.Run("Market Mismatch", func(t *testing.T) {
		_, err := LoadFundamentals("US", path, "2026-08-21")
		assert.ErrorContains(t, err, "declares market")
	})

	t.Run("Missing File Is Empty", func(t *testing.T) {
		got, err := LoadFundamentals("JP", filepath.Join(dir, "absent.yaml"), "2026-08-21")
		assert.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Empty Path Is Empty", func(t *testing.T) {
		got, err := LoadFundamentals("JP", "", "2026-08-21")
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLoadFundamentalsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("symbols: [not-a-map"), 0o644); err != nil {
		t.Fatalf("写基本面文件失败: %v", err)
	}
	_, err := LoadFundamentals("JP", path, "2026-08-21")
	assert.Error(t, err)
}
