package market

import (
	"fmt"
	"math"
	"time"
)

// Candle 表示一根已收盘的日线，时间为毫秒时间戳（UTC）。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// DateKey 返回交易日标识（UTC 日期）。
func (c Candle) DateKey() string {
	return time.UnixMilli(c.OpenTime).UTC().Format("2006-01-02")
}

type Candles []Candle

func (cs Candles) Opens() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Open
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Volumes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// ValidateDaily 检查日线序列质量：价格有效、高低关系成立、日期严格递增。
// 任何一项不满足都视为数据缺陷，由调用方决定跳过该标的。
func ValidateDaily(cs []Candle) error {
	for i, c := range cs {
		if !validPrice(c.Open) || !validPrice(c.High) || !validPrice(c.Low) || !validPrice(c.Close) {
			return fmt.Errorf("bar %d (%s): invalid price", i, c.DateKey())
		}
		if c.High < c.Low {
			return fmt.Errorf("bar %d (%s): high %.4f below low %.4f", i, c.DateKey(), c.High, c.Low)
		}
		if c.Volume < 0 || math.IsNaN(c.Volume) {
			return fmt.Errorf("bar %d (%s): invalid volume", i, c.DateKey())
		}
		if i > 0 {
			prev := cs[i-1]
			if c.OpenTime <= prev.OpenTime {
				return fmt.Errorf("bar %d (%s): not after previous bar %s", i, c.DateKey(), prev.DateKey())
			}
			if c.DateKey() == prev.DateKey() {
				return fmt.Errorf("bar %d: duplicate day %s", i, c.DateKey())
			}
		}
	}
	return nil
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
