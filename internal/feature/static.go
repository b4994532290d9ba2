package feature

import (
	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/universe"
)

// BuildStatic 由标的清单条目与日线历史构造静态特征包。
// 数据不足以计算某项时该项缺席，不报错。
func BuildStatic(entry universe.Entry, candles []market.Candle) *Bundle {
	nums := make(map[string]float64, 3)
	strs := make(map[string]string, 1)
	asOf := ""
	if last, ok := market.Candles(candles).Last(); ok {
		asOf = last.DateKey()
		if entry.SharesOutstanding > 0 {
			nums[KeyMarketCap] = entry.SharesOutstanding * last.Close
		}
	}
	if turnover, ok := avgTurnover(candles, 20); ok {
		nums[KeyAvgTurnover20] = turnover
	}
	if entry.LotSize > 0 {
		nums[KeyLotSize] = float64(entry.LotSize)
	}
	if entry.Sector != "" {
		strs[KeySector] = entry.Sector
	}
	return NewBundle(ProvenanceStatic, entry.Symbol, asOf, nums, strs)
}

func avgTurnover(candles []market.Candle, window int) (float64, bool) {
	if len(candles) < window || window <= 0 {
		return 0, false
	}
	var sum float64
	for _, c := range candles[len(candles)-window:] {
		sum += c.Close * c.Volume
	}
	return sum / float64(window), true
}
