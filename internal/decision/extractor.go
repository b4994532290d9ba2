package decision

import (
	"fmt"
	"math"

	"github.com/satter0827/market-decision-engine/internal/feature"
)

// 中文说明：
// 候选提取：纯函数扫描日线特征，输出 0..MaxCandidates 个 PlanArgs。
// - breakout20: 收盘进入 20 日高点附近且放量，预埋次日突破买
// - pullback: 上升趋势中回踩 20 日均线且 RSI 落入温和区
// 检测器按 Priority 升序执行，提取器绝不计算任何成交价格。

const directionLong = "long"

type detector struct {
	kind     SetupKind
	priority int
	detect   func(view feature.Daily, p Params) (PlanArgs, bool)
}

// detectors 固定顺序返回全部检测器，顺序即确定性的一部分。
func detectors() []detector {
	return []detector{
		{kind: SetupBreakout20, priority: 1, detect: detectBreakout20},
		{kind: SetupPullback, priority: 2, detect: detectPullback},
	}
}

// ExtractCandidates 扫描单标的特征，返回按优先级排序的候选。
// 特征不完整返回 SkipError，由引擎转为单标的跳过。
func ExtractCandidates(view feature.Daily, p Params) ([]PlanArgs, error) {
	if err := view.Complete(); err != nil {
		return nil, Skip("daily_incomplete", err)
	}
	var out []PlanArgs
	for _, det := range detectors() {
		args, ok := det.detect(view, p)
		if !ok {
			continue
		}
		args.Setup = det.kind
		args.Priority = det.priority
		args.Direction = directionLong
		if err := args.sane(); err != nil {
			return nil, Skip("candidate_insane", err)
		}
		out = append(out, args)
		if len(out) >= p.MaxCandidates {
			break
		}
	}
	return out, nil
}

// sane 挡住会让后续价格计算失真的候选。
func (a PlanArgs) sane() error {
	for name, v := range map[string]float64{
		"ref_level": a.RefLevel,
		"swing_low": a.SwingLow,
		"atr":       a.ATR,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%s 候选 %s 非法: %v", a.Setup, name, v)
		}
	}
	if a.SwingLow >= a.RefLevel {
		return fmt.Errorf("%s 候选保护位 %.4f 不低于参考位 %.4f", a.Setup, a.SwingLow, a.RefLevel)
	}
	return nil
}

// detectBreakout20 突破候选：收盘距 20 日高点不超过 ArmWithin 且量比达标。
// 入场参考位是 hh_20 本身，保护位取 ll_20。
func detectBreakout20(view feature.Daily, p Params) (PlanArgs, bool) {
	closeToHH, ok := view.CloseToHH20()
	if !ok {
		return PlanArgs{}, false
	}
	vRatio, _ := view.VRatio20()
	if closeToHH < -p.Breakout.ArmWithin || vRatio < p.Breakout.MinVolumeRatio {
		return PlanArgs{}, false
	}
	hh20, _ := view.HH20()
	ll20, _ := view.LL20()
	atr, _ := view.ATR14()

	// 越贴近高点越强，量比超出门槛部分再给少量加成。
	proximity := clamp01(1 + closeToHH/p.Breakout.ArmWithin)
	volumeKick := clamp01((vRatio - p.Breakout.MinVolumeRatio) / p.Breakout.MinVolumeRatio)
	strength := clamp01(0.7*proximity + 0.3*volumeKick)

	return PlanArgs{
		RefLevel: hh20,
		SwingLow: ll20,
		ATR:      atr,
		Strength: strength,
	}, true
}

// detectPullback 回踩候选：均线多头排列，收盘回到 sma_20 附近
// （偏离不超过 ATRBand 倍 ATR），RSI 处于温和区间。
// 入场参考位取当日高点，等待次日重拾强势。
func detectPullback(view feature.Daily, p Params) (PlanArgs, bool) {
	closePx, _ := view.Close()
	sma20, _ := view.SMA20()
	sma50, _ := view.SMA50()
	if closePx <= sma50 || sma20 <= sma50 {
		return PlanArgs{}, false
	}
	atr, ok := view.ATR14()
	if !ok || atr <= 0 {
		return PlanArgs{}, false
	}
	dist := math.Abs(closePx - sma20)
	if dist > p.Pullback.ATRBand*atr {
		return PlanArgs{}, false
	}
	rsi, _ := view.RSI14()
	if rsi < p.Pullback.RSIMin || rsi > p.Pullback.RSIMax {
		return PlanArgs{}, false
	}
	high, ok := view.Get(feature.KeyHigh)
	if !ok || high <= 0 {
		return PlanArgs{}, false
	}
	ll20, _ := view.LL20()

	// 回踩贴均线越紧越干净。
	strength := clamp01(1 - dist/(p.Pullback.ATRBand*atr))

	return PlanArgs{
		RefLevel: high,
		SwingLow: ll20,
		ATR:      atr,
		Strength: strength,
	}, true
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
