// Package regime 按基准指数的日线判定市场状态。
// 状态只影响仓位缩减与资格，绝不触碰任何价格字段。
package regime

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/satter0827/market-decision-engine/internal/market"
)

type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

type Volatility string

const (
	VolLow    Volatility = "low"
	VolNormal Volatility = "normal"
	VolHigh   Volatility = "high"
)

type RiskGate string

const (
	GateOn      RiskGate = "on"
	GateReduced RiskGate = "reduced"
	GateOff     RiskGate = "off"
)

type State struct {
	Trend      Trend      `json:"trend"`
	Volatility Volatility `json:"volatility"`
	RiskGate   RiskGate   `json:"risk_gate"`
	Benchmark  string     `json:"benchmark"`
	AsOf       string     `json:"as_of"`
}

// Thresholds 是年化波动分档边界。
type Thresholds struct {
	VolLowBelow  float64
	VolHighAbove float64
}

const minBars = 60

// Detect 由基准日线计算一次市场状态。数据不足返回错误，
// 调用方应回退 Fallback 并标记本批次降级。
func Detect(benchmark string, candles []market.Candle, th Thresholds) (State, error) {
	if len(candles) < minBars {
		return State{}, fmt.Errorf("regime %s: need %d bars, got %d", benchmark, minBars, len(candles))
	}
	if err := market.ValidateDaily(candles); err != nil {
		return State{}, fmt.Errorf("regime %s: %w", benchmark, err)
	}
	cs := market.Candles(candles)
	closes := cs.Closes()
	last, _ := cs.Last()

	sma20 := tail(talib.Sma(closes, 20))
	sma50 := tail(talib.Sma(closes, 50))
	if sma20 <= 0 || sma50 <= 0 {
		return State{}, fmt.Errorf("regime %s: moving averages unavailable", benchmark)
	}
	trend := TrendSideways
	switch {
	case last.Close > sma50 && sma20 > sma50:
		trend = TrendUp
	case last.Close < sma50 && sma20 < sma50:
		trend = TrendDown
	}

	vol20 := annualizedVol(closes, 20)
	volState := VolNormal
	switch {
	case vol20 < th.VolLowBelow:
		volState = VolLow
	case vol20 > th.VolHighAbove:
		volState = VolHigh
	}

	gate := GateReduced
	switch {
	case trend == TrendUp && volState != VolHigh:
		gate = GateOn
	case trend == TrendDown && volState == VolHigh:
		gate = GateOff
	}

	return State{
		Trend:      trend,
		Volatility: volState,
		RiskGate:   gate,
		Benchmark:  benchmark,
		AsOf:       last.DateKey(),
	}, nil
}

// Fallback 是状态检测失败时的保守回退：只缩不放。
func Fallback(benchmark, asOf string) State {
	return State{
		Trend:      TrendSideways,
		Volatility: VolNormal,
		RiskGate:   GateReduced,
		Benchmark:  benchmark,
		AsOf:       asOf,
	}
}

func annualizedVol(closes []float64, window int) float64 {
	n := len(closes)
	if n < window+1 {
		return 0
	}
	rets := make([]float64, 0, window)
	for i := n - window; i < n; i++ {
		if closes[i-1] <= 0 {
			return 0
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var sq float64
	for _, r := range rets {
		sq += (r - mean) * (r - mean)
	}
	variance := sq / float64(len(rets)-1)
	return math.Sqrt(variance) * math.Sqrt(252)
}

func tail(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] > 0 {
			return series[i]
		}
	}
	return 0
}
