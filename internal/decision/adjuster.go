package decision

import (
	"math"

	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
)

// 中文说明：
// 风险与市况调整：只做两件事，缩小仓位或翻转资格，
// 永远不触碰价格字段。全部乘数落在 (0,1]，最终系数是乘积。
// static 特征缺席时跳过对应分桶并打标，不报错。

const (
	adjRegimeOff     = "regime_off"
	adjRegimeReduced = "regime_reduced"
	adjSmallCap      = "small_cap"
	adjIlliquid      = "illiquid"
	adjThinTurnover  = "thin_turnover"
	adjImpactCap     = "impact_cap"
	adjBelowMinPrice = "below_min_price"
	adjStaticAbsent  = "static_absent"
)

// AdjustPlan 对执行计划叠加市况与流动性调整。
// static 允许为 nil；返回错误仅在来源标签错配（契约违例）时出现。
func AdjustPlan(plan ExecutionPlan, static *feature.Bundle, reg regime.State, pol policy.Snapshot) (AdjustedPlan, error) {
	adj := AdjustedPlan{
		Plan:           plan,
		SizeMultiplier: 1.0,
		Eligible:       true,
	}

	shrink := func(mult float64, tag string) {
		if mult > 0 && mult < 1 {
			adj.SizeMultiplier *= mult
			adj.Adjustments = append(adj.Adjustments, tag)
		}
	}

	switch reg.RiskGate {
	case regime.GateOff:
		adj.Eligible = false
		adj.SizeMultiplier = 0
		adj.Adjustments = append(adj.Adjustments, adjRegimeOff)
	case regime.GateReduced:
		shrink(pol.Sizing.RegimeReducedMult, adjRegimeReduced)
	}

	if pol.Constraints.MinPrice > 0 && plan.Entry < pol.Constraints.MinPrice {
		adj.Eligible = false
		adj.Adjustments = append(adj.Adjustments, adjBelowMinPrice)
	}

	if static == nil {
		adj.Adjustments = append(adj.Adjustments, adjStaticAbsent)
	} else {
		view, err := feature.StaticView(static)
		if err != nil {
			return AdjustedPlan{}, Contractf("adjust", "%s: %v", plan.Ticker, err)
		}
		if mcap, ok := view.MarketCap(); ok && pol.Sizing.SmallCapBelow > 0 && mcap < pol.Sizing.SmallCapBelow {
			shrink(pol.Sizing.SmallCapMult, adjSmallCap)
		}
		if turnover, ok := view.AvgTurnover20(); ok {
			switch {
			case pol.Constraints.MinAvgTurnover > 0 && turnover < pol.Constraints.MinAvgTurnover:
				adj.Eligible = false
				adj.Adjustments = append(adj.Adjustments, adjIlliquid)
			case pol.Sizing.ThinTurnoverBelow > 0 && turnover < pol.Sizing.ThinTurnoverBelow:
				shrink(pol.Sizing.ThinTurnoverMult, adjThinTurnover)
			}
			// 单笔名义不超过日均成交额的冲击上限。
			if pol.Constraints.ImpactCapPct > 0 && plan.Entry > 0 && plan.PositionSize > 0 {
				notional := plan.Entry * float64(plan.PositionSize)
				capNotional := turnover * pol.Constraints.ImpactCapPct
				if notional > capNotional && capNotional > 0 {
					shrink(capNotional/notional, adjImpactCap)
				}
			}
		}
	}

	// 缩减乘积只可能不放大，越界说明上游逻辑被改坏。
	if adj.SizeMultiplier > 1 || adj.SizeMultiplier < 0 || math.IsNaN(adj.SizeMultiplier) {
		return AdjustedPlan{}, Contractf("adjust", "%s 缩减系数越界: %v", plan.Ticker, adj.SizeMultiplier)
	}

	if adj.Eligible {
		adj.AdjustedSize = floorToLot(int(float64(plan.PositionSize)*adj.SizeMultiplier), pol.Constraints.LotSize)
	}
	return adj, nil
}
