package feature

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/satter0827/market-decision-engine/internal/market"
)

// MinDailyBars 是日线特征计算所需的最少已收盘K线数，
// 覆盖 SMA50 与 MACD(12,26,9) 的预热区间。
const MinDailyBars = 60

// BuildDaily 由已收盘日线计算全部日线派生特征。
// 序列校验失败或强制字段算不出来都按数据缺陷返回错误。
func BuildDaily(symbol string, candles []market.Candle) (*Bundle, error) {
	if len(candles) < MinDailyBars {
		return nil, fmt.Errorf("daily features %s: need %d bars, got %d", symbol, MinDailyBars, len(candles))
	}
	if err := market.ValidateDaily(candles); err != nil {
		return nil, fmt.Errorf("daily features %s: %w", symbol, err)
	}
	cs := market.Candles(candles)
	closes := cs.Closes()
	highs := cs.Highs()
	lows := cs.Lows()
	volumes := cs.Volumes()
	n := len(candles)
	last := candles[n-1]
	prev := candles[n-2]

	nums := map[string]float64{
		KeyOpen:   last.Open,
		KeyHigh:   last.High,
		KeyLow:    last.Low,
		KeyClose:  last.Close,
		KeyVolume: last.Volume,
	}

	put(nums, KeyRet1D, last.Close/prev.Close-1)
	put(nums, KeyRet5D, closes[n-1]/closes[n-6]-1)
	put(nums, KeyRet20D, closes[n-1]/closes[n-21]-1)
	put(nums, KeyLogRet1D, math.Log(last.Close/prev.Close))

	logrets := make([]float64, 0, 20)
	for i := n - 20; i < n; i++ {
		logrets = append(logrets, math.Log(closes[i]/closes[i-1]))
	}
	put(nums, KeyVol20D, stdev(logrets)*math.Sqrt(252))

	put(nums, KeySMA5, tail(talib.Sma(closes, 5)))
	put(nums, KeySMA20, tail(talib.Sma(closes, 20)))
	put(nums, KeySMA50, tail(talib.Sma(closes, 50)))
	put(nums, KeyEMA20, tail(talib.Ema(closes, 20)))
	put(nums, KeyEMA50, tail(talib.Ema(closes, 50)))
	put(nums, KeyRSI14, tail(talib.Rsi(closes, 14)))
	put(nums, KeyATR14, tail(talib.Atr(highs, lows, closes, 14)))
	put(nums, KeyTrueRange, tail(talib.TRange(highs, lows, closes)))
	put(nums, KeyOBV, tail(talib.Obv(closes, volumes)))

	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	put(nums, KeyMACD, tail(macd))
	put(nums, KeyMACDSignal, tail(signal))
	put(nums, KeyMACDHist, tail(hist))

	k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	put(nums, KeyStochK14, tail(k))
	put(nums, KeyStochD3, tail(d))

	up, mid, dn := talib.BBands(closes, 20, 2, 2, talib.SMA)
	put(nums, KeyBBUp, tail(up))
	put(nums, KeyBBMid, tail(mid))
	put(nums, KeyBBDn, tail(dn))

	vsma := tail(talib.Sma(volumes, 20))
	put(nums, KeyVSMA20, vsma)
	if vsma > 0 {
		put(nums, KeyVRatio20, last.Volume/vsma)
	}

	hh := highs[n-20]
	ll := lows[n-20]
	for i := n - 19; i < n; i++ {
		hh = math.Max(hh, highs[i])
		ll = math.Min(ll, lows[i])
	}
	put(nums, KeyHH20, hh)
	put(nums, KeyLL20, ll)
	if hh > 0 {
		put(nums, KeyCloseToHH20, last.Close/hh-1)
	}
	if ll > 0 {
		put(nums, KeyCloseToLL20, last.Close/ll-1)
	}

	put(nums, KeyHLRange, (last.High-last.Low)/last.Close)
	put(nums, KeyGapPct, last.Open/prev.Close-1)

	bundle := NewBundle(ProvenanceDaily, symbol, last.DateKey(), nums, nil)
	view, err := DailyView(bundle)
	if err != nil {
		return nil, err
	}
	if err := view.Complete(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// put 丢弃 NaN/Inf，避免坏值混入特征包。
func put(m map[string]float64, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m[key] = v
}

// tail 返回序列最后一个有效值，全无效时返回 NaN。
func tail(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return math.NaN()
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
