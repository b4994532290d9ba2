package decision

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/policy"
)

// 中文说明：
// 执行计划生成：把候选参考位换算成完整交易计划。
// - 入场价向上取整到 tick，止损价向下取整，取整不会倒贴风险
// - 止损锚取 swing_low 与 entry-k*ATR 中较近者
// - 取整后 risk_per_share<=0 的候选直接拒绝
// - 目标价按 2R/3R 推导，股数按风险预算下取整到手数
// 价格运算全程走 decimal，出参前一次性转回 float64。

var (
	decTwo   = decimal.NewFromInt(2)
	decThree = decimal.NewFromInt(3)
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// roundToTick 把价格对齐到最小跳动单位。up 控制取整方向。
func roundToTick(price decimal.Decimal, tick float64, up bool) decimal.Decimal {
	t := decFromFloat(tick)
	if t.Sign() <= 0 {
		return price
	}
	steps := price.Div(t)
	if up {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(t)
}

// floorToLot 股数向下对齐到手数，手数非法时按 1 处理。
func floorToLot(shares, lot int) int {
	if lot <= 1 {
		if shares < 0 {
			return 0
		}
		return shares
	}
	if shares < lot {
		return 0
	}
	return shares - shares%lot
}

// GeneratePlan 从候选生成执行计划。返回错误表示该候选被拒绝，
// 引擎记告警后继续处理其余候选，不影响整个标的。
func GeneratePlan(ticker, asOf string, args PlanArgs, view feature.Daily, p Params, pol policy.Snapshot) (ExecutionPlan, error) {
	entryRaw := decFromFloat(args.RefLevel).Mul(decFromFloat(1 + pol.TradePlan.EntryBufferPct))
	tick := pol.Constraints.TickFor(decToFloat(entryRaw))
	entry := roundToTick(entryRaw, tick, true)
	if entry.Sign() <= 0 {
		return ExecutionPlan{}, fmt.Errorf("入场价非法: %s", entry)
	}

	// 两个止损锚里取较近的一个，避免保护位过远导致风险失真。
	atrStop := entry.Sub(decFromFloat(pol.TradePlan.ATRStopK).Mul(decFromFloat(args.ATR)))
	stopAnchor := decFromFloat(args.SwingLow)
	if atrStop.GreaterThan(stopAnchor) {
		stopAnchor = atrStop
	}
	stop := roundToTick(stopAnchor, tick, false)

	risk := entry.Sub(stop)
	if risk.Sign() <= 0 {
		return ExecutionPlan{}, fmt.Errorf("取整后每股风险 %s <= 0 (entry=%s stop=%s)", risk, entry, stop)
	}

	target2 := roundToTick(entry.Add(risk.Mul(decTwo)), tick, false)
	target3 := roundToTick(entry.Add(risk.Mul(decThree)), tick, false)

	var warnings []string

	// 股数 = 风险预算 / 每股风险，先下取整再压到手数。
	budget := decFromFloat(pol.Account.Equity).Mul(decFromFloat(pol.Risk.RiskPerTradePct))
	rawShares := int(budget.Div(risk).IntPart())
	shares := floorToLot(rawShares, pol.Constraints.LotSize)

	// 名义市值上限封顶。
	if pol.Risk.MaxPositionPct > 0 {
		capNotional := decFromFloat(pol.Account.Equity).Mul(decFromFloat(pol.Risk.MaxPositionPct))
		capShares := floorToLot(int(capNotional.Div(entry).IntPart()), pol.Constraints.LotSize)
		if capShares < shares {
			shares = capShares
			warnings = append(warnings, "position_capped")
		}
	}
	if shares < 0 {
		shares = 0
	}

	maxLoss := decToFloat(risk.Mul(decimal.NewFromInt(int64(shares))))

	plan := ExecutionPlan{
		Ticker:       ticker,
		AsOf:         asOf,
		Args:         args,
		Entry:        decToFloat(entry),
		Stop:         decToFloat(stop),
		Target2R:     decToFloat(target2),
		Target3R:     decToFloat(target3),
		RiskPerShare: decToFloat(risk),
		PositionSize: shares,
		MaxLoss:      maxLoss,
		TimeStopDays: pol.TradePlan.TimeStopFor(string(args.Setup)),
		PlanScore:    planScore(args, view, p.Score),
		Warnings:     warnings,
	}
	plan.seal()
	return plan, nil
}

// planScore 质量分，落在 [0,1]：形态强度、量能、趋势位置三因子加权。
func planScore(args PlanArgs, view feature.Daily, w ScoreWeights) float64 {
	vRatio, _ := view.VRatio20()
	volumeQ := clamp01((vRatio - 1) / 2)

	closePx, _ := view.Close()
	sma50, _ := view.SMA50()
	trendQ := 0.0
	if sma50 > 0 {
		trendQ = clamp01((closePx/sma50 - 1) / 0.10)
	}

	total := w.Strength + w.Volume + w.Trend
	if total <= 0 {
		return clamp01(args.Strength)
	}
	score := (w.Strength*clamp01(args.Strength) + w.Volume*volumeQ + w.Trend*trendQ) / total
	return clamp01(score)
}
